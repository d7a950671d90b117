package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/tier"
)

// Decision is the admission outcome for one request.
type Decision struct {
	Allowed    bool
	Category   string
	Tier       tier.Tier
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
	// FailOpen marks a decision admitted without quota enforcement
	// because the shared store was unreachable.
	FailOpen bool
}

// SetHeaders attaches the standard rate limit headers. Fail-open
// decisions carry no quota, so headers are skipped for them.
func (d Decision) SetHeaders(h http.Header) {
	if d.Limit <= 0 {
		return
	}
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.ResetAt.Unix()))
	if !d.Allowed && d.RetryAfter > 0 {
		h.Set("Retry-After", fmt.Sprintf("%d", int64(math.Ceil(d.RetryAfter.Seconds()))))
	}
}

// maxKeyIdentity bounds the client identity embedded in quota keys.
// Longer identities are replaced by their xxhash so arbitrary tokens
// cannot blow up key size in the shared store.
const maxKeyIdentity = 64

// Gate is the admission checkpoint in front of business handlers.
type Gate struct {
	store    CounterStore
	smooth   CounterStore
	resolver *Resolver
	tiers    TierResolver
	sampler  Sampler
	metrics  *Metrics
	logger   *slog.Logger

	lowTraffic int64
	boost      float64
	keyPrefix  string
	now        func() time.Time
	onDeny     func(ctx context.Context, d Decision)
}

// NewGate builds a Gate over the given counter store.
func NewGate(store CounterStore, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.initErr != nil {
		return nil, o.initErr
	}

	resolver := o.resolver
	if resolver == nil {
		var err error
		resolver, err = NewResolver(nil, "", nil)
		if err != nil {
			return nil, err
		}
	}

	metrics, err := NewMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}

	return &Gate{
		store:      store,
		smooth:     o.smoothStore,
		resolver:   resolver,
		tiers:      o.tiers,
		sampler:    o.sampler,
		metrics:    metrics,
		logger:     o.logger,
		lowTraffic: o.lowTraffic,
		boost:      o.boost,
		keyPrefix:  o.keyPrefix,
		now:        o.now,
		onDeny:     o.onDeny,
	}, nil
}

// Check decides whether one request from clientID to endpoint proceeds.
// Store failures never reject: the decision fails open with no quota
// metadata attached.
func (g *Gate) Check(ctx context.Context, clientID, endpoint string) Decision {
	start := g.now()

	category := g.resolver.Category(endpoint)
	t := tier.TierFree
	if g.tiers != nil {
		t = g.tiers.Resolve(ctx, clientID)
	}

	pol := g.resolver.Resolve(category, t, g.adaptiveMultiplier(ctx))

	store := g.store
	if pol.Smooth && g.smooth != nil {
		store = g.smooth
	}

	res, err := store.Check(ctx, g.key(clientID, category), pol.Limit.Count, pol.Limit.Window)
	g.recordTraffic(ctx)

	if err != nil {
		g.logger.Warn("quota store unreachable, admitting without enforcement",
			slog.String("category", category),
			slog.String("error", err.Error()))
		g.metrics.RecordFailOpen(ctx, category)
		return Decision{
			Allowed:  true,
			Category: category,
			Tier:     t,
			FailOpen: true,
		}
	}

	d := Decision{
		Allowed:   res.Allowed,
		Category:  category,
		Tier:      t,
		Limit:     pol.Limit.Count,
		Remaining: max(0, pol.Limit.Count-res.Count),
		ResetAt:   g.now().Add(res.TTL),
	}
	if !d.Allowed {
		d.RetryAfter = res.TTL
		g.logger.Debug("admission rejected",
			slog.String("category", category),
			slog.String("tier", t.String()),
			slog.Int64("limit", d.Limit),
			slog.Duration("retry_after", d.RetryAfter))
		if g.onDeny != nil {
			g.onDeny(ctx, d)
		}
	}
	g.metrics.RecordCheck(ctx, category, t.String(), d.Allowed, g.now().Sub(start))
	return d
}

// Query reports the current quota position without consuming a unit.
func (g *Gate) Query(ctx context.Context, clientID, endpoint string) (Decision, error) {
	category := g.resolver.Category(endpoint)
	t := tier.TierFree
	if g.tiers != nil {
		t = g.tiers.Resolve(ctx, clientID)
	}
	pol := g.resolver.Resolve(category, t, g.adaptiveMultiplier(ctx))

	count, err := g.store.Get(ctx, g.key(clientID, category))
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   count < pol.Limit.Count,
		Category:  category,
		Tier:      t,
		Limit:     pol.Limit.Count,
		Remaining: max(0, pol.Limit.Count-count),
	}, nil
}

// Reset clears the quota window for one client and endpoint category.
func (g *Gate) Reset(ctx context.Context, clientID, endpoint string) error {
	return g.store.Reset(ctx, g.key(clientID, g.resolver.Category(endpoint)))
}

// adaptiveMultiplier recomputes the low-traffic boost on every call.
// Load changes continuously, so the sample is never cached. Sampler
// failures yield the neutral multiplier.
func (g *Gate) adaptiveMultiplier(ctx context.Context) float64 {
	if g.sampler == nil {
		return 1.0
	}
	volume, err := g.sampler.HourlyVolume(ctx)
	if err != nil {
		return 1.0
	}
	if volume < g.lowTraffic {
		return g.boost
	}
	return 1.0
}

func (g *Gate) recordTraffic(ctx context.Context) {
	if g.sampler == nil {
		return
	}
	if err := g.sampler.Record(ctx); err != nil {
		g.logger.Debug("traffic sample dropped", slog.String("error", err.Error()))
	}
}

func (g *Gate) key(clientID, category string) string {
	if clientID == "" {
		clientID = "anonymous"
	}
	if len(clientID) > maxKeyIdentity {
		clientID = fmt.Sprintf("h:%x", xxhash.Sum64String(clientID))
	}
	return fmt.Sprintf("%s:rl:%s:%s", g.keyPrefix, clientID, category)
}
