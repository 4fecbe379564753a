// Package overrides stores operator-curated mappings from a catalog title to
// a source's internal id, bypassing search and matching.
package overrides

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

// ErrNotFound is returned when no override exists for a key.
var ErrNotFound = fmt.Errorf("%w: override", media.ErrNotFound)

// Key identifies a title on a source. Season and episode are not part of
// the key: overrides map the show, identifiers below it are still looked up.
type Key struct {
	Source    string     `json:"source"`
	Kind      media.Kind `json:"kind"`
	CatalogID string     `json:"catalog_id"`
}

// Normalize lowercases the source and trims the catalog id.
func (k Key) Normalize() Key {
	return Key{
		Source:    strings.ToLower(strings.TrimSpace(k.Source)),
		Kind:      k.Kind,
		CatalogID: strings.TrimSpace(k.CatalogID),
	}
}

func (k Key) Validate() error {
	switch {
	case k.Source == "":
		return fmt.Errorf("%w: source is required", media.ErrValidation)
	case k.CatalogID == "":
		return fmt.Errorf("%w: catalog_id is required", media.ErrValidation)
	case k.Kind != media.KindMovie && k.Kind != media.KindSeries:
		return fmt.Errorf("%w: unsupported kind %q", media.ErrValidation, k.Kind)
	}
	return nil
}

// Override is a stored mapping.
type Override struct {
	Key
	InternalID string    `json:"internal_id"`
	Note       string    `json:"note,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is the persistence contract for overrides.
type Store interface {
	Get(ctx context.Context, k Key) (Override, error)
	Put(ctx context.Context, o Override) (Override, error)
	Delete(ctx context.Context, k Key) error
	List(ctx context.Context, source string) ([]Override, error)
}

// NewStore returns a Postgres-backed store when pool is non-nil, otherwise
// an in-memory one.
func NewStore(pool *pgxpool.Pool) Store {
	if pool != nil {
		return NewPostgresStore(pool)
	}
	return NewMemoryStore()
}

func prepare(o Override) (Override, error) {
	o.Key = o.Key.Normalize()
	o.InternalID = strings.TrimSpace(o.InternalID)
	if err := o.Key.Validate(); err != nil {
		return Override{}, err
	}
	if o.InternalID == "" {
		return Override{}, fmt.Errorf("%w: internal_id is required", media.ErrValidation)
	}
	return o, nil
}
