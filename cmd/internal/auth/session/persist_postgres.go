package session

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPersister stores the snapshot in fleetdash.client_state.
type PostgresPersister struct {
	pool *pgxpool.Pool
	key  string
}

// NewPostgresPersister creates a Postgres-backed persister for the storage key.
func NewPostgresPersister(pool *pgxpool.Pool, key string) *PostgresPersister {
	return &PostgresPersister{pool: pool, key: key}
}

// EnsureSchema creates the schema and table if they do not exist.
func (p *PostgresPersister) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS fleetdash`); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fleetdash.client_state (
			key        text PRIMARY KEY,
			value      jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (p *PostgresPersister) Load(ctx context.Context) (Snapshot, bool, error) {
	var b []byte
	err := p.pool.QueryRow(ctx, `
		SELECT value
		FROM fleetdash.client_state
		WHERE key = $1
	`, p.key).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	snap, err := decodeSnapshot(b)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (p *PostgresPersister) Save(ctx context.Context, snap Snapshot) error {
	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO fleetdash.client_state (key, value, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, p.key, string(b))
	return err
}

func (p *PostgresPersister) Clear(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM fleetdash.client_state WHERE key = $1`, p.key)
	return err
}
