package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache implements usecase.Cache on Redis. The override snapshot cache is
// its only user today; a miss returns nil, nil.
type Cache struct {
	client redis.Cmdable
}

func NewCache(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, cacheKeys.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, nil
}

// Generation returns the current generation of key, zero if never invalidated.
func (c *Cache) Generation(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKeys.key(key)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("cache generation %s: %w", key, err)
	}
	return gen, nil
}

// setIfGeneration stores ARGV[1] under KEYS[1] only while KEYS[2] still
// holds generation ARGV[2]. ARGV[3] is the ttl in milliseconds, 0 for none.
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[2] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

func (c *Cache) SetIfGeneration(ctx context.Context, key string, value []byte, ttl time.Duration, gen int64) (bool, error) {
	keys := []string{cacheKeys.key(key), generationKeys.key(key)}
	stored, err := setIfGeneration.Run(ctx, c.client, keys, value, strconv.FormatInt(gen, 10), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("cache set %s: %w", key, err)
	}
	return stored == 1, nil
}

// Invalidate drops key and bumps its generation in one MULTI, so loads that
// started before the call can no longer store.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKeys.key(key))
		pipe.Del(ctx, cacheKeys.key(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache invalidate %s: %w", key, err)
	}
	return nil
}

// Flush drops every cached snapshot and returns how many keys went.
// Generations are kept. The server calls it on boot, since a restart usually
// follows a manual fix in the database that cached months would hide.
func (c *Cache) Flush(ctx context.Context) (int, error) {
	n := 0
	iter := c.client.Scan(ctx, 0, cacheKeys.pattern(), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return n, fmt.Errorf("cache flush: %w", err)
		}
		n++
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("cache flush: %w", err)
	}
	return n, nil
}
