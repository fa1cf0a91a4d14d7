package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open creates a connection pool for dbURL and checks that it answers.
// Callers own the pool and close it.
func Open(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL not set")
	}

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS fact_records (
	company       TEXT             NOT NULL,
	metric_id     TEXT             NOT NULL,
	period_date   DATE             NOT NULL,
	scenario      TEXT             NOT NULL,
	amount        DOUBLE PRECISION NOT NULL,
	source_file   TEXT             NOT NULL,
	document_type TEXT             NOT NULL,
	priority      INTEGER          NOT NULL,
	explanation   JSONB,
	change_log    JSONB            NOT NULL DEFAULT '[]'::jsonb,
	updated_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
	PRIMARY KEY (company, metric_id, period_date, scenario)
);

CREATE TABLE IF NOT EXISTS metric_mappings (
	id          UUID             PRIMARY KEY,
	company     TEXT             NOT NULL,
	raw_label   TEXT             NOT NULL,
	metric_id   TEXT             NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	status      TEXT             NOT NULL,
	created_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
	UNIQUE (company, raw_label)
);

CREATE INDEX IF NOT EXISTS metric_mappings_pending_idx
	ON metric_mappings (company, created_at) WHERE status = 'pending';
`

// Migrate creates the ledger and mapping tables when missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("database pool not configured")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
