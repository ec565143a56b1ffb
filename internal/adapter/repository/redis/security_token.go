package redis

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultSecurityTokenTTL bounds how long a write token stays valid.
const DefaultSecurityTokenTTL = 30 * time.Minute

// SecurityTokenStore implements usecase.SecurityTokenStore. Each session holds
// at most one token; issuing a new one invalidates the previous.
type SecurityTokenStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewSecurityTokenStore creates a new SecurityTokenStore.
func NewSecurityTokenStore(client redis.Cmdable, ttl time.Duration) *SecurityTokenStore {
	if ttl <= 0 {
		ttl = DefaultSecurityTokenTTL
	}
	return &SecurityTokenStore{
		client: client,
		ttl:    ttl,
	}
}

// Issue rotates the token for sessionID.
func (s *SecurityTokenStore) Issue(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id is required")
	}
	token := uuid.NewString()
	if err := s.client.Set(ctx, securityTokenKeys.key(sessionID), token, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store security token: %w", err)
	}
	return token, nil
}

// Validate reports whether token is the session's current token.
func (s *SecurityTokenStore) Validate(ctx context.Context, sessionID, token string) (bool, error) {
	if sessionID == "" || token == "" {
		return false, nil
	}
	current, err := s.client.Get(ctx, securityTokenKeys.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load security token: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(token)) == 1, nil
}
