// Package postgres provides Postgres-backed persistence implementations.
//
// Expected schema:
//
//	CREATE TABLE jobs (
//	    id UUID PRIMARY KEY,
//	    url TEXT NOT NULL UNIQUE,
//	    state TEXT NOT NULL,
//	    fast_path BOOLEAN NOT NULL DEFAULT FALSE,
//	    batch_kind TEXT,
//	    requesters TEXT NOT NULL,
//	    result JSONB,
//	    failure_reason TEXT,
//	    stuck BOOLEAN NOT NULL DEFAULT FALSE,
//	    notes TEXT,
//	    extra_tags TEXT,
//	    submitted_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE subscribers (
//	    job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
//	    requester_id TEXT NOT NULL,
//	    channel_id TEXT,
//	    mention BOOLEAN NOT NULL DEFAULT TRUE,
//	    added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (job_id, requester_id)
//	);
//
//	CREATE TABLE settings (
//	    key TEXT PRIMARY KEY,
//	    value TEXT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxIface is the pool surface the stores need; pgxpool.Pool and
// pgxmock.PgxPoolIface both satisfy it.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool connects a pgx pool from the config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
