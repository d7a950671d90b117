package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// ErrNilClient reports a state store constructed without a Redis client.
var ErrNilClient = errors.New("breaker: nil redis client")

// StateStore publishes breaker transitions to a shared backend so a
// fleet of replicas can observe each other's breakers. Trip decisions
// stay local; the store is visibility, not enforcement.
type StateStore interface {
	// Publish records a transition for the named breaker.
	Publish(ctx context.Context, name string, from, to gobreaker.State, counts gobreaker.Counts) error
	// Load returns the last published state for the named breaker.
	// Unknown names return an empty string.
	Load(ctx context.Context, name string) (string, error)
}

const stateStoreTTL = 24 * time.Hour

// RedisStateStore keeps the last transition per breaker in a Redis hash.
type RedisStateStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ StateStore = (*RedisStateStore)(nil)

// NewRedisStateStore builds a state store namespaced under prefix.
func NewRedisStateStore(rdb redis.UniversalClient, prefix string) (*RedisStateStore, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	return &RedisStateStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStateStore) key(name string) string {
	return fmt.Sprintf("%s:breaker:%s", s.prefix, name)
}

// Publish implements StateStore.
func (s *RedisStateStore) Publish(ctx context.Context, name string, from, to gobreaker.State, counts gobreaker.Counts) error {
	key := s.key(name)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key,
		"state", to.String(),
		"from", from.String(),
		"changed_at", time.Now().UTC().Format(time.RFC3339),
		"consecutive_failures", counts.ConsecutiveFailures,
		"total_failures", counts.TotalFailures,
	)
	pipe.Expire(ctx, key, stateStoreTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("breaker: publish state for %q: %w", name, err)
	}
	return nil
}

// Load implements StateStore.
func (s *RedisStateStore) Load(ctx context.Context, name string) (string, error) {
	state, err := s.rdb.HGet(ctx, s.key(name), "state").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("breaker: load state for %q: %w", name, err)
	}
	return state, nil
}
