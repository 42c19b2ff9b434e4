// Package session persists last-known state snapshots for named sessions.
// The record is only used to seed a hub instance when it is (re)created and
// as a fire-and-forget write-through after merges; during normal operation
// the hub's in-memory value is the sole source of truth.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no record exists for the named session.
var ErrNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	name    TEXT PRIMARY KEY,
	state   JSONB NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
)`

// Store reads and writes session records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the sessions table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure sessions schema: %w", err)
	}
	return nil
}

// Load returns the stored snapshot and version counter for the named session.
func (s *Store) Load(ctx context.Context, name string) ([]byte, int64, error) {
	var snapshot []byte
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT state, version FROM sessions WHERE name = $1`, name,
	).Scan(&snapshot, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load session %q: %w", name, err)
	}
	return snapshot, version, nil
}

// Save upserts the snapshot for the named session and returns the new version.
// The version counter increases monotonically with every save.
func (s *Store) Save(ctx context.Context, name string, snapshot []byte) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (name, state, version) VALUES ($1, $2, 1)
		 ON CONFLICT (name) DO UPDATE SET state = EXCLUDED.state, version = sessions.version + 1
		 RETURNING version`,
		name, snapshot,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("save session %q: %w", name, err)
	}
	return version, nil
}

// Exists reports whether a record exists for the named session.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check session %q: %w", name, err)
	}
	return exists, nil
}
