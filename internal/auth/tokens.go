// Package auth implements the session-token login flow that resolves HTTP
// requests to a user identity. It is a collaborator of the hub, not part of
// it: the hub core never sees user identity and performs no authorization.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidToken is returned when a token is unknown or has expired.
var ErrInvalidToken = errors.New("invalid session token")

const tokenKeyPrefix = "soundmesh:token:"

// TokenStore issues and resolves opaque session tokens kept in Redis with a
// sliding expiry.
type TokenStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTokenStore creates a TokenStore with the given token lifetime.
func NewTokenStore(rdb *redis.Client, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenStore{rdb: rdb, ttl: ttl}
}

// Issue creates a fresh opaque token bound to the user id.
func (t *TokenStore) Issue(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	if err := t.rdb.Set(ctx, tokenKeyPrefix+token, userID, t.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session token: %w", err)
	}
	return token, nil
}

// Lookup resolves a token to the user id it was issued for and refreshes its
// expiry. Unknown or expired tokens return ErrInvalidToken.
func (t *TokenStore) Lookup(ctx context.Context, token string) (string, error) {
	userID, err := t.rdb.GetEx(ctx, tokenKeyPrefix+token, t.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("lookup session token: %w", err)
	}
	return userID, nil
}

// Revoke removes a token. Revoking an unknown token is not an error.
func (t *TokenStore) Revoke(ctx context.Context, token string) error {
	if err := t.rdb.Del(ctx, tokenKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("revoke session token: %w", err)
	}
	return nil
}
