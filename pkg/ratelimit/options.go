package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/tier"
)

// TierResolver answers tier lookups for the gate. *tier.Resolver
// satisfies it; a nil resolver treats every caller as free.
type TierResolver interface {
	Resolve(ctx context.Context, userID string) tier.Tier
}

const (
	defaultLowTrafficThreshold = 1000
	defaultAdaptiveBoost       = 1.5
	defaultKeyPrefix           = "lugn"
)

type options struct {
	logger        *slog.Logger
	resolver      *Resolver
	tiers         TierResolver
	sampler       Sampler
	smoothStore   CounterStore
	meterProvider metric.MeterProvider
	lowTraffic    int64
	boost         float64
	keyPrefix     string
	now           func() time.Time
	onDeny        func(ctx context.Context, d Decision)
	initErr       error
}

// Option configures a Gate.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		logger:     slog.Default(),
		lowTraffic: defaultLowTrafficThreshold,
		boost:      defaultAdaptiveBoost,
		keyPrefix:  defaultKeyPrefix,
		now:        time.Now,
	}
}

// WithLogger sets the gate logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithResolver replaces the built-in policy resolver.
func WithResolver(r *Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithTierResolver wires the tier collaborator. Absent, every caller is
// treated as free tier.
func WithTierResolver(t TierResolver) Option {
	return func(o *options) {
		o.tiers = t
	}
}

// WithSampler wires the traffic sampler driving adaptive throttling.
// Absent, the adaptive multiplier is always 1.0.
func WithSampler(s Sampler) Option {
	return func(o *options) {
		o.sampler = s
	}
}

// WithSmoothStore sets the store used for categories on the smooth list.
func WithSmoothStore(s CounterStore) Option {
	return func(o *options) {
		o.smoothStore = s
	}
}

// WithMeterProvider enables admission metrics.
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = p
	}
}

// WithLowTrafficThreshold sets the hourly volume below which the
// adaptive boost applies.
func WithLowTrafficThreshold(n int64) Option {
	return func(o *options) {
		if n >= 0 {
			o.lowTraffic = n
		}
	}
}

// WithAdaptiveBoost sets the low-traffic limit multiplier. Values below
// 1.0 are ignored.
func WithAdaptiveBoost(boost float64) Option {
	return func(o *options) {
		if boost >= 1.0 {
			o.boost = boost
		}
	}
}

// WithKeyPrefix namespaces quota keys in the shared store.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithOnDeny registers a hook invoked on every rejection.
func WithOnDeny(fn func(ctx context.Context, d Decision)) Option {
	return func(o *options) {
		o.onDeny = fn
	}
}
