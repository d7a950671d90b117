// Package breaker guards calls to unreliable dependencies with circuit
// breakers.
//
// Each dependency gets one named Breaker: a Closed/Open/HalfOpen machine
// that opens after a run of consecutive failures, rejects calls while
// open, and probes recovery with a single trial call once the recovery
// timeout elapses. The Registry creates breakers lazily by name and can
// publish state transitions to a shared store for fleet-wide visibility.
package breaker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
)

type options struct {
	threshold     uint32
	timeout       time.Duration
	interval      time.Duration
	maxRequests   uint32
	expected      func(error) bool
	onStateChange func(name string, from, to gobreaker.State)
	logger        *slog.Logger
}

// Option configures a Breaker.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		threshold:   defaultFailureThreshold,
		timeout:     defaultRecoveryTimeout,
		maxRequests: 1,
		logger:      slog.Default(),
	}
}

// WithFailureThreshold sets the consecutive-failure count that opens the
// breaker.
func WithFailureThreshold(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.threshold = n
		}
	}
}

// WithRecoveryTimeout sets how long the breaker stays open before a
// trial call.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithInterval sets the closed-state count reset interval. Zero keeps
// counts for the life of the closed state.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.interval = d
		}
	}
}

// WithExpectedErrors limits breaker bookkeeping to errors matching fn.
// Non-matching errors pass through to the caller unrecorded.
func WithExpectedErrors(fn func(error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.expected = fn
		}
	}
}

// WithOnStateChange registers a transition hook.
func WithOnStateChange(fn func(name string, from, to gobreaker.State)) Option {
	return func(o *options) {
		o.onStateChange = fn
	}
}

// WithLogger sets the logger used for transition logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Breaker wraps one dependency with a circuit breaker.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// New builds a named breaker. Defaults: threshold 5, recovery timeout
// 60s, one trial call in half-open.
func New(name string, opts ...Option) *Breaker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	threshold := o.threshold
	expected := o.expected
	logger := o.logger
	hook := o.onStateChange

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: o.maxRequests,
		Interval:    o.interval,
		Timeout:     o.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Unexpected error classes pass through unrecorded.
			return expected != nil && !expected(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			level := slog.LevelInfo
			if to == gobreaker.StateOpen {
				level = slog.LevelWarn
			}
			logger.Log(context.Background(), level, "breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			if hook != nil {
				hook(name, from, to)
			}
		},
	}

	return &Breaker{
		name: name,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Name returns the dependency name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Counts returns the current counters.
func (b *Breaker) Counts() gobreaker.Counts { return b.cb.Counts() }

// Do runs fn through the breaker. While open, fn is not invoked and Do
// returns an OpenError. fn's own error is returned unchanged otherwise.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return b.translate(err)
}

// Execute runs fn through breaker b and returns its value.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	v, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, b.translate(err)
	}
	if v == nil {
		return zero, nil
	}
	return v.(T), nil
}

func (b *Breaker) translate(err error) error {
	switch err {
	case nil:
		return nil
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		return &OpenError{Name: b.name, State: b.cb.State(), err: err}
	default:
		return err
	}
}
