// Package storepg is the Postgres-backed persistence layer: projects, users,
// blobs, buffer entries, profiles and events. Reads that the spec routes
// through a cache (profiles) are wrapped by internal/cache at a higher
// layer; this package only talks to Postgres.
package storepg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool opens a pgx connection pool (up to 50+30 connections, each
// recycled after 10 minutes) and verifies connectivity.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storepg: parse dsn: %w", err)
	}
	cfg.MaxConns = 50 + 30
	cfg.MaxConnLifetime = 10 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storepg: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storepg: ping: %w", err)
	}
	return pool, nil
}

// EmbeddingDimMismatchError is returned by EnsureSchema when the events
// table's existing vector column width disagrees with the configured
// embedding dimension (spec §6: "startup validates the actual column
// dimension matches config (fatal mismatch)").
type EmbeddingDimMismatchError struct {
	Configured int
	Actual     int
}

func (e *EmbeddingDimMismatchError) Error() string {
	return fmt.Sprintf("storepg: events.embedding column is vector(%d), configured embedding_dim is %d", e.Actual, e.Configured)
}

// EnsureSchema creates every table this package owns (idempotent) and
// validates the events vector column dimension against embeddingDim.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDim int) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("storepg: create vector extension: %w", err)
	}

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS projects (
    project_id       TEXT PRIMARY KEY,
    secret           TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'active',
    profile_config   TEXT NOT NULL DEFAULT '',
    token_quota      BIGINT,                   -- NULL means unlimited
    tokens_used      BIGINT NOT NULL DEFAULT 0, -- resets with billing_period_start
    cost_micro_usd   BIGINT NOT NULL DEFAULT 0, -- accrued cost this billing period, in micro-USD
    billing_period_start TIMESTAMPTZ NOT NULL DEFAULT date_trunc('month', now()),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
    id         TEXT NOT NULL,
    project_id TEXT NOT NULL REFERENCES projects(project_id) ON DELETE CASCADE,
    attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS blobs (
    id         TEXT NOT NULL,
    project_id TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    blob_type  TEXT NOT NULL,
    messages   JSONB,
    content    TEXT,
    fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (project_id, user_id, id),
    FOREIGN KEY (project_id, user_id) REFERENCES users(project_id, id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS blobs_list_idx ON blobs(project_id, user_id, blob_type, created_at ASC);

CREATE TABLE IF NOT EXISTS buffer_entries (
    id         BIGSERIAL PRIMARY KEY,
    project_id TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    blob_type  TEXT NOT NULL,
    blob_id    TEXT NOT NULL,
    token_size INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS buffer_entries_scope_idx ON buffer_entries(project_id, user_id, blob_type, created_at ASC);

CREATE TABLE IF NOT EXISTS profiles (
    id          TEXT NOT NULL,
    project_id  TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    content     TEXT NOT NULL,
    topic       TEXT NOT NULL,
    sub_topic   TEXT NOT NULL,
    update_hits INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (project_id, user_id, id),
    FOREIGN KEY (project_id, user_id) REFERENCES users(project_id, id) ON DELETE CASCADE
);
CREATE UNIQUE INDEX IF NOT EXISTS profiles_key_idx ON profiles(project_id, user_id, topic, sub_topic);
CREATE INDEX IF NOT EXISTS profiles_updated_idx ON profiles(project_id, user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS events (
    id          TEXT NOT NULL,
    project_id  TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    event_data  JSONB NOT NULL,
    embedding   vector(%d),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (project_id, user_id, id),
    FOREIGN KEY (project_id, user_id) REFERENCES users(project_id, id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS events_updated_idx ON events(project_id, user_id, updated_at DESC);
`, embeddingDim)

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("storepg: apply schema: %w", err)
	}

	actual, err := eventsVectorDim(ctx, pool)
	if err != nil {
		return fmt.Errorf("storepg: inspect events.embedding dimension: %w", err)
	}
	if actual > 0 && actual != embeddingDim {
		return &EmbeddingDimMismatchError{Configured: embeddingDim, Actual: actual}
	}

	if _, err := pool.Exec(ctx, `
INSERT INTO projects (project_id, secret, status)
VALUES ('__root__', '', 'active')
ON CONFLICT (project_id) DO NOTHING`); err != nil {
		return fmt.Errorf("storepg: seed root project: %w", err)
	}
	return nil
}

func eventsVectorDim(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var dim *int
	// pgvector stores the configured dimension directly in atttypmod (no
	// varlena header offset, unlike varchar).
	err := pool.QueryRow(ctx, `
SELECT atttypmod
FROM pg_attribute
WHERE attrelid = 'events'::regclass AND attname = 'embedding'`).Scan(&dim)
	if err != nil {
		return 0, err
	}
	if dim == nil {
		return 0, nil
	}
	return *dim, nil
}
