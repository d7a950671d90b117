package ratelimit

import (
	"context"
	"time"
)

// CheckResult is the outcome of one counter check.
type CheckResult struct {
	// Allowed reports whether the unit was admitted.
	Allowed bool
	// Count is the window counter after the check. A rejection leaves the
	// counter unchanged, so Count equals the pre-check value.
	Count int64
	// TTL is the remaining life of the current window.
	TTL time.Duration
}

// CounterStore provides fixed-window counters shared across replicas.
// Implementations must be safe for concurrent use.
type CounterStore interface {
	// Check admits or rejects one unit against limit within window. The
	// admit decision and the increment are a single atomic step: a
	// rejection must leave the counter unchanged, and the first increment
	// of a window must set the counter's expiry to the window length.
	Check(ctx context.Context, key string, limit int64, window time.Duration) (CheckResult, error)

	// Get returns the current count without incrementing. Missing keys
	// read as zero.
	Get(ctx context.Context, key string) (int64, error)

	// Reset removes the counter for key.
	Reset(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}
