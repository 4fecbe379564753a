package metadata

import (
	"context"

	"github.com/example/mcat-providers/services/resolver/internal/media"
	"github.com/example/mcat-providers/services/resolver/internal/memo"
)

// DefaultCacheSize bounds the per-process metadata cache.
const DefaultCacheSize = 128

// Resolver memoizes a Fetcher by composite key.
type Resolver struct {
	fetcher Fetcher
	cache   *memo.Cache[string, media.Metadata]
}

func NewResolver(f Fetcher, cacheSize int) *Resolver {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Resolver{fetcher: f, cache: memo.New[string, media.Metadata](cacheSize)}
}

// Resolve returns metadata for ref, calling upstream at most once per
// composite key while the entry stays cached.
func (r *Resolver) Resolve(ctx context.Context, ref media.Ref) (media.Metadata, error) {
	key, err := ref.CompositeKey()
	if err != nil {
		return media.Metadata{}, err
	}
	return r.cache.Do(ctx, key, func(ctx context.Context) (media.Metadata, error) {
		return r.fetcher.Fetch(ctx, ref)
	})
}
