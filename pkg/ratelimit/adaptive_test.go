package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSampler(t *testing.T) (*RedisSampler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s, err := NewRedisSampler(client, "test")
	require.NoError(t, err)
	return s, mr
}

func TestRedisSampler_RecordAndVolume(t *testing.T) {
	s, _ := newSampler(t)
	ctx := context.Background()

	vol, err := s.HourlyVolume(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), vol)

	for range 7 {
		require.NoError(t, s.Record(ctx))
	}

	vol, err = s.HourlyVolume(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), vol)
}

func TestRedisSampler_HourBucketsAreIndependent(t *testing.T) {
	s, _ := newSampler(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.Record(ctx))
	require.NoError(t, s.Record(ctx))

	// The next hour starts an empty bucket.
	s.now = func() time.Time { return base.Add(time.Hour) }
	vol, err := s.HourlyVolume(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), vol)

	// The previous bucket still holds its samples.
	s.now = func() time.Time { return base }
	vol, err = s.HourlyVolume(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), vol)
}

func TestRedisSampler_BucketsExpire(t *testing.T) {
	s, mr := newSampler(t)
	ctx := context.Background()

	fixed := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	require.NoError(t, s.Record(ctx))

	mr.FastForward(26 * time.Hour)

	vol, err := s.HourlyVolume(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), vol)
}

func TestNewRedisSampler_NilClient(t *testing.T) {
	_, err := NewRedisSampler(nil, "test")
	assert.ErrorIs(t, err, ErrNilClient)
}
