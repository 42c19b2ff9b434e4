// Package presence maintains durable "last seen" records for users in named
// sessions. It is independent of the WebSocket hub: heartbeats arrive over
// REST and land in Postgres, so presence survives hub restarts even though
// hub state does not.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionNotFound is returned when the target session record does not exist.
var ErrSessionNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS presence (
	session_name TEXT NOT NULL REFERENCES sessions (name) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	last_seen    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_name, user_id)
)`

// SessionChecker reports whether a record exists for the named session. The
// session store owns that question; presence only consults it.
type SessionChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// Store reads and writes presence records in Postgres.
type Store struct {
	pool     *pgxpool.Pool
	sessions SessionChecker
}

// NewStore creates a Store backed by the given connection pool. Heartbeats
// are only accepted for sessions the checker knows about.
func NewStore(pool *pgxpool.Pool, sessions SessionChecker) *Store {
	return &Store{pool: pool, sessions: sessions}
}

// EnsureSchema creates the presence table if it does not exist. The sessions
// table must exist first; it owns the referenced session names.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure presence schema: %w", err)
	}
	return nil
}

// Touch upserts the last-seen timestamp for the user in the named session.
// It returns ErrSessionNotFound if no session record exists.
func (s *Store) Touch(ctx context.Context, sessionName, userID string, seen time.Time) error {
	exists, err := s.sessions.Exists(ctx, sessionName)
	if err != nil {
		return fmt.Errorf("check session %q: %w", sessionName, err)
	}
	if !exists {
		return ErrSessionNotFound
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO presence (session_name, user_id, last_seen) VALUES ($1, $2, $3)
		 ON CONFLICT (session_name, user_id) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
		sessionName, userID, seen,
	); err != nil {
		return fmt.Errorf("touch presence for %q in %q: %w", userID, sessionName, err)
	}
	return nil
}

// Remove deletes the user's presence record for the named session. Removing
// a record that does not exist is not an error.
func (s *Store) Remove(ctx context.Context, sessionName, userID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM presence WHERE session_name = $1 AND user_id = $2`,
		sessionName, userID,
	); err != nil {
		return fmt.Errorf("remove presence for %q in %q: %w", userID, sessionName, err)
	}
	return nil
}
