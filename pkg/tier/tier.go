// Package tier resolves a caller's subscription tier.
//
// Tiers scale rate limits. Lookups go to the external profile store through
// the Directory interface; results are cached with a TTL and deduplicated
// across concurrent requests. Any lookup failure degrades to TierFree so
// admission never blocks on the profile store.
package tier

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Tier is a caller's subscription level.
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Multiplier returns the rate limit scaling factor for the tier.
// Unknown tiers scale like free.
func (t Tier) Multiplier() float64 {
	switch t {
	case TierPremium:
		return 2.0
	case TierEnterprise:
		return 3.0
	default:
		return 1.0
	}
}

// String implements fmt.Stringer.
func (t Tier) String() string { return string(t) }

// Parse maps a raw profile value to a Tier.
func Parse(s string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, true
	case TierPremium:
		return TierPremium, true
	case TierEnterprise:
		return TierEnterprise, true
	default:
		return TierFree, false
	}
}

// Directory is the external user-profile collaborator.
type Directory interface {
	// Tier returns the subscription tier for a user.
	Tier(ctx context.Context, userID string) (Tier, error)
}

// StaticDirectory serves tiers from a fixed map. Users absent from the
// map are free. Useful for tests and single-node deployments.
type StaticDirectory map[string]Tier

var _ Directory = (StaticDirectory)(nil)

// Tier implements Directory.
func (d StaticDirectory) Tier(_ context.Context, userID string) (Tier, error) {
	if t, ok := d[userID]; ok {
		return t, nil
	}
	return TierFree, nil
}

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 5 * time.Minute
)

type options struct {
	cacheSize int
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		cacheSize: defaultCacheSize,
		cacheTTL:  defaultCacheTTL,
		logger:    slog.Default(),
	}
}

// WithCacheSize bounds the number of cached tier entries.
func WithCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// WithCacheTTL sets how long a cached tier stays valid.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.cacheTTL = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Resolver answers tier lookups with caching and request collapsing.
type Resolver struct {
	dir    Directory
	cache  *expirable.LRU[string, Tier]
	group  singleflight.Group
	logger *slog.Logger
}

// NewResolver builds a Resolver over the given directory.
func NewResolver(dir Directory, opts ...Option) *Resolver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Resolver{
		dir:    dir,
		cache:  expirable.NewLRU[string, Tier](o.cacheSize, nil, o.cacheTTL),
		logger: o.logger,
	}
}

// Resolve returns the user's tier. A nil directory, empty user ID or
// failed lookup yields TierFree. Failures are not cached so the next
// request retries the directory.
func (r *Resolver) Resolve(ctx context.Context, userID string) Tier {
	if r == nil || r.dir == nil || userID == "" {
		return TierFree
	}
	if t, ok := r.cache.Get(userID); ok {
		return t
	}

	v, err, _ := r.group.Do(userID, func() (any, error) {
		t, err := r.dir.Tier(ctx, userID)
		if err != nil {
			return TierFree, err
		}
		r.cache.Add(userID, t)
		return t, nil
	})
	if err != nil {
		r.logger.Debug("tier lookup failed, degrading to free",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return TierFree
	}
	return v.(Tier)
}

// Invalidate drops a cached tier, forcing the next lookup to the directory.
func (r *Resolver) Invalidate(userID string) {
	if r != nil {
		r.cache.Remove(userID)
	}
}
