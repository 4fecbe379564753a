// Package memo provides the bounded in-process caches used by the resolvers.
//
// Eviction is least-recently-used. Concurrent misses on the same key may
// compute the value more than once; the last successful result wins.
// Failed computations are never stored.
package memo

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a bounded LRU safe for concurrent use.
type Cache[K comparable, V any] struct {
	lru *lru.Cache[K, V]
}

// New returns a cache holding at most size entries. size < 1 is treated as 1.
func New[K comparable, V any](size int) *Cache[K, V] {
	if size < 1 {
		size = 1
	}
	c, err := lru.New[K, V](size)
	if err != nil {
		panic(err)
	}
	return &Cache[K, V]{lru: c}
}

func (c *Cache[K, V]) Get(key K) (V, bool) { return c.lru.Get(key) }

func (c *Cache[K, V]) Add(key K, value V) { c.lru.Add(key, value) }

func (c *Cache[K, V]) Len() int { return c.lru.Len() }

// Do returns the cached value for key, or runs fn and stores its result on success.
func (c *Cache[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err := fn(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.lru.Add(key, v)
	return v, nil
}

// Once memoizes a parameterless computation after its first success.
type Once[V any] struct {
	v atomic.Pointer[V]
}

func (o *Once[V]) Do(ctx context.Context, fn func(context.Context) (V, error)) (V, error) {
	if p := o.v.Load(); p != nil {
		return *p, nil
	}
	v, err := fn(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	o.v.CompareAndSwap(nil, &v)
	return *o.v.Load(), nil
}
