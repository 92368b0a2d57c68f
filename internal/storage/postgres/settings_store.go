package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mferrill/workherald/internal/workmeta"
)

// SettingsStore implements workmeta.SettingsStore on Postgres. Channel ids
// and other operator-tunable values live here and are resolved at dispatch
// time, not at startup.
type SettingsStore struct {
	pool pgxIface
}

// NewSettingsStore connects a SettingsStore using the provided config.
func NewSettingsStore(ctx context.Context, cfg Config) (*SettingsStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SettingsStore{pool: pool}, nil
}

// NewSettingsStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewSettingsStoreWithPool(pool pgxIface) (*SettingsStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SettingsStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *SettingsStore) Close() {
	s.pool.Close()
}

// Get returns the value for a key, or workmeta.ErrNotFound when unset.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1;`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", workmeta.ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// Set upserts a key's value.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW();
	`
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
