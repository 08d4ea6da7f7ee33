package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collagist/collagist/backend-go/internal/typeid"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS workshop_snapshots (
    id           TEXT PRIMARY KEY,
    workshop_key TEXT NOT NULL,
    version      INTEGER NOT NULL,
    state        JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (workshop_key, version)
)`

// Postgres appends every board write as a new versioned snapshot row and
// reads back the latest one.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and ensures the snapshot table exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `
        SELECT state FROM workshop_snapshots
        WHERE workshop_key = $1
        ORDER BY version DESC
        LIMIT 1
    `, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get latest snapshot: %w", err)
	}
	return data, true, nil
}

func (p *Postgres) Put(ctx context.Context, key string, data []byte) error {
	_, err := p.pool.Exec(ctx, `
        INSERT INTO workshop_snapshots (id, workshop_key, version, state)
        SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3
        FROM workshop_snapshots
        WHERE workshop_key = $2
    `, typeid.NewSnapshotID(), key, data)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

var _ KV = (*Postgres)(nil)
