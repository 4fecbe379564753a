package overrides

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx := context.Background()

	saved, err := s.Put(ctx, Override{
		Key:        Key{Source: " FlixHq ", Kind: media.KindMovie, CatalogID: "4935 "},
		InternalID: " 19722 ",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if saved.Source != "flixhq" || saved.CatalogID != "4935" || saved.InternalID != "19722" {
		t.Fatalf("expected normalized override, got %+v", saved)
	}
	if !saved.UpdatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected updated_at: %v", saved.UpdatedAt)
	}

	got, err := s.Get(ctx, Key{Source: "FLIXHQ", Kind: media.KindMovie, CatalogID: "4935"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.InternalID != "19722" {
		t.Fatalf("expected 19722, got %q", got.InternalID)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), Key{Source: "flixhq", Kind: media.KindMovie, CatalogID: "1"})
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_PutValidation(t *testing.T) {
	tests := []struct {
		name string
		o    Override
	}{
		{"no source", Override{Key: Key{Kind: media.KindMovie, CatalogID: "1"}, InternalID: "x"}},
		{"no catalog id", Override{Key: Key{Source: "flixhq", Kind: media.KindMovie}, InternalID: "x"}},
		{"bad kind", Override{Key: Key{Source: "flixhq", Kind: media.KindLive, CatalogID: "1"}, InternalID: "x"}},
		{"no internal id", Override{Key: Key{Source: "flixhq", Kind: media.KindSeries, CatalogID: "1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMemoryStore().Put(context.Background(), tt.o); !errors.Is(err, media.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestMemoryStore_DeleteAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, o := range []Override{
		{Key: Key{Source: "flixhq", Kind: media.KindSeries, CatalogID: "1396"}, InternalID: "a"},
		{Key: Key{Source: "flixhq", Kind: media.KindMovie, CatalogID: "4935"}, InternalID: "b"},
		{Key: Key{Source: "other", Kind: media.KindMovie, CatalogID: "1"}, InternalID: "c"},
	} {
		if _, err := s.Put(ctx, o); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	list, _ := s.List(ctx, "FlixHq")
	if len(list) != 2 || list[0].Kind != media.KindMovie || list[1].Kind != media.KindSeries {
		t.Fatalf("unexpected list: %+v", list)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 overrides, got %d", len(all))
	}

	k := Key{Source: "flixhq", Kind: media.KindMovie, CatalogID: "4935"}
	if err := s.Delete(ctx, k); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, k); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestNewStore_DefaultsToMemory(t *testing.T) {
	if _, ok := NewStore(nil).(*MemoryStore); !ok {
		t.Fatal("expected memory store without a pool")
	}
}
