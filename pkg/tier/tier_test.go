package tier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingDirectory struct {
	calls atomic.Int64
	tier  Tier
	err   error
}

func (d *countingDirectory) Tier(_ context.Context, _ string) (Tier, error) {
	d.calls.Add(1)
	if d.err != nil {
		return TierFree, d.err
	}
	return d.tier, nil
}

func TestTier_Multiplier(t *testing.T) {
	assert.Equal(t, 1.0, TierFree.Multiplier())
	assert.Equal(t, 2.0, TierPremium.Multiplier())
	assert.Equal(t, 3.0, TierEnterprise.Multiplier())
	assert.Equal(t, 1.0, Tier("bogus").Multiplier())
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Tier
		ok   bool
	}{
		{"free", TierFree, true},
		{"Premium ", TierPremium, true},
		{"ENTERPRISE", TierEnterprise, true},
		{"gold", TierFree, false},
		{"", TierFree, false},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
	}
}

func TestResolver_CachesLookups(t *testing.T) {
	dir := &countingDirectory{tier: TierPremium}
	r := NewResolver(dir)

	ctx := context.Background()
	for range 10 {
		assert.Equal(t, TierPremium, r.Resolve(ctx, "user-1"))
	}
	assert.Equal(t, int64(1), dir.calls.Load())
}

func TestResolver_DegradesToFreeOnError(t *testing.T) {
	dir := &countingDirectory{err: errors.New("profile store down")}
	r := NewResolver(dir)

	ctx := context.Background()
	assert.Equal(t, TierFree, r.Resolve(ctx, "user-1"))

	// Failures are not cached; the next resolve retries the directory.
	assert.Equal(t, TierFree, r.Resolve(ctx, "user-1"))
	assert.Equal(t, int64(2), dir.calls.Load())
}

func TestResolver_Invalidate(t *testing.T) {
	dir := &countingDirectory{tier: TierEnterprise}
	r := NewResolver(dir, WithCacheTTL(time.Hour))

	ctx := context.Background()
	assert.Equal(t, TierEnterprise, r.Resolve(ctx, "user-1"))
	r.Invalidate("user-1")
	assert.Equal(t, TierEnterprise, r.Resolve(ctx, "user-1"))
	assert.Equal(t, int64(2), dir.calls.Load())
}

func TestResolver_NilAndEmptyInputs(t *testing.T) {
	var r *Resolver
	assert.Equal(t, TierFree, r.Resolve(context.Background(), "user-1"))

	r = NewResolver(nil)
	assert.Equal(t, TierFree, r.Resolve(context.Background(), "user-1"))

	r = NewResolver(StaticDirectory{"u": TierPremium})
	assert.Equal(t, TierFree, r.Resolve(context.Background(), ""))
}

func TestStaticDirectory(t *testing.T) {
	dir := StaticDirectory{"alice": TierPremium}
	got, err := dir.Tier(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Equal(t, TierPremium, got)

	got, err = dir.Tier(context.Background(), "unknown")
	assert.NoError(t, err)
	assert.Equal(t, TierFree, got)
}
