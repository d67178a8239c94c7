package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN. The pool is
// the only resource shared across concurrently running sessions.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the ingestion tables if needed. Having the migration
// in code keeps the stack self-contained so docker-compose can bootstrap
// everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS pricelist_sessions (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	object_key TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('received','analyzing','analyzed','configuring','processing','completed','failed')),
	report JSONB,
	overrides JSONB,
	config JSONB,
	stage TEXT,
	percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	items_processed INTEGER NOT NULL DEFAULT 0,
	total_items INTEGER NOT NULL DEFAULT 0,
	progress_message TEXT,
	processing_started_at TIMESTAMPTZ,
	estimated_completion TIMESTAMPTZ,
	total_processed INTEGER,
	successfully_saved INTEGER,
	failed_count INTEGER,
	completed_at TIMESTAMPTZ,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pricelist_sessions_status ON pricelist_sessions(status);

CREATE TABLE IF NOT EXISTS pricelist_products (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES pricelist_sessions(id) ON DELETE CASCADE,
	brand TEXT NOT NULL,
	product_code TEXT NOT NULL,
	price_excl_vat NUMERIC(14,2),
	price_incl_vat NUMERIC(14,2),
	retail_price NUMERIC(14,2),
	currency TEXT NOT NULL,
	priceable BOOLEAN NOT NULL,
	row_index INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, brand, product_code, row_index)
);
CREATE INDEX IF NOT EXISTS idx_pricelist_products_session ON pricelist_products(session_id);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL CHECK (status IN ('queued','processing','completed','failed')),
	content TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS document_chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	body TEXT NOT NULL,
	UNIQUE (document_id, seq)
);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
