package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// SmoothStore admits via GCRA instead of fixed windows, spreading a
// category's budget evenly across the window. Selected per category
// through the resolver's smooth list.
//
// GCRA has no discrete counter, so Count is derived from the remaining
// budget and Get/Reset operate on redis_rate's internal key.
type SmoothStore struct {
	limiter *redis_rate.Limiter
	rdb     redis.UniversalClient
}

var _ CounterStore = (*SmoothStore)(nil)

// NewSmoothStore wraps a Redis client with a GCRA limiter.
func NewSmoothStore(rdb redis.UniversalClient) (*SmoothStore, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	return &SmoothStore{
		limiter: redis_rate.NewLimiter(rdb),
		rdb:     rdb,
	}, nil
}

// Check implements CounterStore.
func (s *SmoothStore) Check(ctx context.Context, key string, limit int64, window time.Duration) (CheckResult, error) {
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	res, err := s.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   int(limit),
		Burst:  int(limit),
		Period: window,
	})
	if err != nil {
		return CheckResult{}, fmt.Errorf("ratelimit: smooth check %q: %w", key, err)
	}

	ttl := res.ResetAfter
	if res.Allowed == 0 {
		ttl = res.RetryAfter
	}
	return CheckResult{
		Allowed: res.Allowed > 0,
		Count:   limit - int64(res.Remaining),
		TTL:     ttl,
	}, nil
}

// Get implements CounterStore. GCRA keeps no plain counter; Get reports
// zero so admin views fall back to the fixed-window stores for counts.
func (s *SmoothStore) Get(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

// Reset implements CounterStore.
func (s *SmoothStore) Reset(ctx context.Context, key string) error {
	if err := s.limiter.Reset(ctx, key); err != nil {
		return fmt.Errorf("ratelimit: smooth reset %q: %w", key, err)
	}
	return nil
}

// Close implements CounterStore.
func (s *SmoothStore) Close() error { return nil }
