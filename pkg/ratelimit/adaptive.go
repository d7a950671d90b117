package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sampler observes global request volume for adaptive throttling.
type Sampler interface {
	// Record counts one admission check in the current hour bucket.
	Record(ctx context.Context) error
	// HourlyVolume returns the request volume observed in the current hour.
	HourlyVolume(ctx context.Context) (int64, error)
}

// trafficBucketRetention keeps roughly a day of hourly buckets so the
// samples age out on their own.
const trafficBucketRetention = 25 * time.Hour

// RedisSampler counts requests in per-hour Redis buckets. Deliberately
// coarse: one counter per UTC hour, no smoothing across the boundary.
type RedisSampler struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ Sampler = (*RedisSampler)(nil)

// NewRedisSampler builds a sampler namespaced under prefix.
func NewRedisSampler(rdb redis.UniversalClient, prefix string) (*RedisSampler, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	return &RedisSampler{rdb: rdb, prefix: prefix, now: time.Now}, nil
}

func (s *RedisSampler) bucket() string {
	return fmt.Sprintf("%s:traffic:%s", s.prefix, s.now().UTC().Format("2006010215"))
}

// Record implements Sampler.
func (s *RedisSampler) Record(ctx context.Context) error {
	key := s.bucket()
	pipe := s.rdb.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, trafficBucketRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ratelimit: record traffic: %w", err)
	}
	return nil
}

// HourlyVolume implements Sampler.
func (s *RedisSampler) HourlyVolume(ctx context.Context) (int64, error) {
	n, err := s.rdb.Get(ctx, s.bucket()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: hourly volume: %w", err)
	}
	return n, nil
}
