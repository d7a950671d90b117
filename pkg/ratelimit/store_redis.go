package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript performs the fixed-window admit-and-count atomically.
// KEYS[1] window counter key
// ARGV[1] limit, ARGV[2] window in milliseconds
// Returns {allowed, count, pttl}. A rejection does not increment, so the
// counter never runs past the limit on the rejection path.
var checkScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then
    ttl = tonumber(ARGV[2])
  end
  return {0, current, ttl}
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
local ttl = redis.call('PTTL', KEYS[1])
return {1, count, ttl}
`)

// RedisStore is the shared fixed-window counter store.
type RedisStore struct {
	rdb redis.UniversalClient
}

var _ CounterStore = (*RedisStore)(nil)

// NewRedisStore wraps a Redis client as a CounterStore.
func NewRedisStore(rdb redis.UniversalClient) (*RedisStore, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	return &RedisStore{rdb: rdb}, nil
}

// Check implements CounterStore via a Lua script, so the read, compare,
// increment and expiry set are one atomic step on the server.
func (s *RedisStore) Check(ctx context.Context, key string, limit int64, window time.Duration) (CheckResult, error) {
	vals, err := checkScript.Run(ctx, s.rdb, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return CheckResult{}, fmt.Errorf("ratelimit: check %q: %w", key, err)
	}
	if len(vals) != 3 {
		return CheckResult{}, fmt.Errorf("ratelimit: check %q: unexpected script reply length %d", key, len(vals))
	}
	return CheckResult{
		Allowed: vals[0] == 1,
		Count:   vals[1],
		TTL:     time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// Get implements CounterStore.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: get %q: %w", key, err)
	}
	return n, nil
}

// Reset implements CounterStore.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("ratelimit: reset %q: %w", key, err)
	}
	return nil
}

// Close implements CounterStore. The client is owned by the caller and
// may be shared; Close is a no-op here.
func (s *RedisStore) Close() error { return nil }
