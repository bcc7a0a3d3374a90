package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript counts a request and returns {count, remaining window ms}.
// The expiry is only set when the window opens, so concurrent gateways
// share one window per key.
var incrementScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisStore keeps windows in Redis so that every gateway instance
// enforces the same limit.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore. Keys are stored under RedisKeyPrefix.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{
		redis:  redisClient,
		prefix: RedisKeyPrefix,
	}
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	if s.redis == nil {
		return 0, time.Time{}, fmt.Errorf("redis client not configured")
	}

	res, err := incrementScript.Run(ctx, s.redis, []string{s.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment rate limit counter: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("increment rate limit counter: unexpected reply %v", res)
	}

	return int(res[0]), time.Now().Add(time.Duration(res[1]) * time.Millisecond), nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if s.redis == nil {
		return fmt.Errorf("redis client not configured")
	}
	if err := s.redis.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit counter: %w", err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis client not configured")
	}
	return s.redis.Ping(ctx).Err()
}
