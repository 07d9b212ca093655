package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const defaultTable = "parking_cache"

// Storage keeps cache entries in a Postgres table.
type Storage struct {
	db    *sql.DB
	table string
}

// Option configures the storage.
type Option func(*Storage)

// WithTable overrides the table name.
func WithTable(table string) Option {
	return func(s *Storage) {
		if table != "" {
			s.table = table
		}
	}
}

// NewStorage constructs a Postgres-backed storage.
func NewStorage(db *sql.DB, opts ...Option) (*Storage, error) {
	if db == nil {
		return nil, errors.New("postgres storage: nil db")
	}
	s := &Storage{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureSchema creates the cache table if needed.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	value JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Get returns the value for key, or nil when missing.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.table)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set upserts key.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`
INSERT INTO %s (key, value, updated_at)
VALUES ($1, $2::jsonb, NOW())
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, s.table)
	_, err := s.db.ExecContext(ctx, query, key, string(value))
	return err
}

// Remove deletes key.
func (s *Storage) Remove(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table)
	_, err := s.db.ExecContext(ctx, query, key)
	return err
}

// Clear deletes every key.
func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table))
	return err
}
