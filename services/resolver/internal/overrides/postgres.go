package overrides

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

const schema = `CREATE TABLE IF NOT EXISTS title_overrides (
	source      TEXT        NOT NULL,
	kind        TEXT        NOT NULL,
	catalog_id  TEXT        NOT NULL,
	internal_id TEXT        NOT NULL,
	note        TEXT        NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, kind, catalog_id)
)`

// PostgresStore persists overrides in the title_overrides table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, k Key) (Override, error) {
	k = k.Normalize()
	const q = `SELECT source, kind, catalog_id, internal_id, note, updated_at
	           FROM title_overrides WHERE source = $1 AND kind = $2 AND catalog_id = $3`
	o, err := scanOverride(s.pool.QueryRow(ctx, q, k.Source, string(k.Kind), k.CatalogID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Override{}, ErrNotFound
	}
	return o, err
}

func (s *PostgresStore) Put(ctx context.Context, o Override) (Override, error) {
	o, err := prepare(o)
	if err != nil {
		return Override{}, err
	}
	const q = `INSERT INTO title_overrides (source, kind, catalog_id, internal_id, note)
	           VALUES ($1, $2, $3, $4, $5)
	           ON CONFLICT (source, kind, catalog_id)
	           DO UPDATE SET internal_id = EXCLUDED.internal_id, note = EXCLUDED.note, updated_at = now()
	           RETURNING source, kind, catalog_id, internal_id, note, updated_at`
	return scanOverride(s.pool.QueryRow(ctx, q, o.Source, string(o.Kind), o.CatalogID, o.InternalID, o.Note))
}

func (s *PostgresStore) Delete(ctx context.Context, k Key) error {
	k = k.Normalize()
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM title_overrides WHERE source = $1 AND kind = $2 AND catalog_id = $3`,
		k.Source, string(k.Kind), k.CatalogID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, source string) ([]Override, error) {
	source = Key{Source: source}.Normalize().Source
	const q = `SELECT source, kind, catalog_id, internal_id, note, updated_at
	           FROM title_overrides WHERE ($1 = '' OR source = $1)
	           ORDER BY source, kind, catalog_id`
	rows, err := s.pool.Query(ctx, q, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Override{}
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOverride(row pgx.Row) (Override, error) {
	var (
		o    Override
		kind string
	)
	if err := row.Scan(&o.Source, &kind, &o.CatalogID, &o.InternalID, &o.Note, &o.UpdatedAt); err != nil {
		return Override{}, err
	}
	o.Kind = media.Kind(kind)
	return o, nil
}
