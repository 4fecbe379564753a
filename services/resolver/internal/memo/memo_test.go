package memo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCache_DoComputesOncePerKey(t *testing.T) {
	c := New[string, int](4)
	var calls int
	fn := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}
	for i := 0; i < 3; i++ {
		v, err := c.Do(context.Background(), "k", fn)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 42 {
			t.Fatalf("expected 42, got %d", v)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestCache_DoDoesNotStoreErrors(t *testing.T) {
	c := New[string, int](4)
	var calls int
	fail := func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	}
	_, _ = c.Do(context.Background(), "k", fail)
	_, _ = c.Do(context.Background(), "k", fail)
	if calls != 2 {
		t.Fatalf("expected 2 calls for failing fn, got %d", calls)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, int](2)
	c.Add(1, 1)
	c.Add(2, 2)
	_, _ = c.Get(1)
	c.Add(3, 3)

	if _, ok := c.Get(2); ok {
		t.Fatal("expected key 2 to be evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Fatal("expected key 1 to survive")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestCache_ZeroSizeIsUsable(t *testing.T) {
	c := New[string, string](0)
	c.Add("a", "b")
	if v, ok := c.Get("a"); !ok || v != "b" {
		t.Fatalf("expected cached value, got %q (ok=%v)", v, ok)
	}
}

func TestCache_ConcurrentMissesAreSafe(t *testing.T) {
	c := New[string, int](8)
	var calls atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Do(context.Background(), "shared", func(context.Context) (int, error) {
				calls.Add(1)
				return 7, nil
			})
		}()
	}
	wg.Wait()
	if calls.Load() < 1 {
		t.Fatal("expected at least one computation")
	}
	if v, _ := c.Get("shared"); v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
}

func TestOnce_CachesFirstSuccessOnly(t *testing.T) {
	var o Once[[]byte]
	var calls int
	_, err := o.Do(context.Background(), func(context.Context) ([]byte, error) {
		calls++
		return nil, errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error on first call")
	}
	for i := 0; i < 2; i++ {
		v, err := o.Do(context.Background(), func(context.Context) ([]byte, error) {
			calls++
			return []byte("asset"), nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(v) != "asset" {
			t.Fatalf("expected 'asset', got %q", v)
		}
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}
