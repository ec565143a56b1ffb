package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingResponse marks a key whose first request is still running.
const PendingResponse = "processing"

// releasePending deletes KEYS[1] only while it still holds the pending
// marker, so a late Release cannot drop a stored response.
var releasePending = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// claimOrGet sets KEYS[1] to ARGV[1] when absent and returns nil, or returns
// the value already there. ARGV[2] is the ttl in milliseconds, 0 for none.
// Claim and read share one script so an expiry cannot fall between them.
var claimOrGet = redis.NewScript(`
local set
if tonumber(ARGV[2]) > 0 then
	set = redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2])
else
	set = redis.call("SET", KEYS[1], ARGV[1], "NX")
end
if set then
	return false
end
return redis.call("GET", KEYS[1])`)

// IdempotencyStore implements usecase.IdempotencyStore on Redis.
type IdempotencyStore struct {
	client redis.Cmdable
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client redis.Cmdable) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// CheckAndSet claims key. When the key is already taken it returns true with
// the stored response, which may be PendingResponse.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	k := idempotencyKeys.key(key)

	value := response
	if value == nil {
		value = []byte(PendingResponse)
	}

	existing, err := claimOrGet.Run(ctx, s.client, []string{k}, value, ttl.Milliseconds()).Text()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil, nil
	case err != nil:
		return false, nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	return true, []byte(existing), nil
}

// Update stores the final response for key.
func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return s.client.Set(ctx, idempotencyKeys.key(key), response, ttl).Err()
}

// Release drops a pending claim so the request can be retried. A completed
// response is left in place.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return releasePending.Run(ctx, s.client, []string{idempotencyKeys.key(key)}, PendingResponse).Err()
}
