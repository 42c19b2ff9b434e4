package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned when the username is unknown or the password
// does not match. Callers should not distinguish the two cases.
var ErrBadCredentials = errors.New("bad credentials")

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL
)`

// UserStore checks credentials against the users table in Postgres.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// EnsureSchema creates the users table if it does not exist.
func (u *UserStore) EnsureSchema(ctx context.Context) error {
	if _, err := u.pool.Exec(ctx, usersSchema); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

// Authenticate verifies the username/password pair and returns the user id.
func (u *UserStore) Authenticate(ctx context.Context, username, password string) (string, error) {
	var id, hash string
	err := u.pool.QueryRow(ctx,
		`SELECT id, password_hash FROM users WHERE username = $1`, username,
	).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrBadCredentials
	}
	if err != nil {
		return "", fmt.Errorf("look up user %q: %w", username, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", ErrBadCredentials
	}
	return id, nil
}

// CreateUser inserts a user with a bcrypt-hashed password and returns its id.
func (u *UserStore) CreateUser(ctx context.Context, id, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := u.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3)`,
		id, username, string(hash),
	); err != nil {
		return fmt.Errorf("create user %q: %w", username, err)
	}
	return nil
}
