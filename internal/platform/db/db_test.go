package db

import (
	"context"
	"testing"
)

func TestOpen_RequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error without dsn")
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz"); err == nil {
		t.Fatal("expected parse error")
	}
}
