package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

var (
	// ErrLimited marks an admission rejection. Use errors.Is to detect it.
	ErrLimited = errors.New("ratelimit: limit exceeded")

	// ErrInvalidLimit reports an unparseable limit expression.
	ErrInvalidLimit = errors.New("ratelimit: invalid limit expression")

	// ErrNilStore reports a Gate constructed without a counter store.
	ErrNilStore = errors.New("ratelimit: nil counter store")

	// ErrNilClient reports a store constructed without a Redis client.
	ErrNilClient = errors.New("ratelimit: nil redis client")
)

// LimitError carries the quota details of a rejected admission.
type LimitError struct {
	Category   string
	Limit      int64
	RetryAfter time.Duration
}

// Error implements error.
func (e *LimitError) Error() string {
	return fmt.Sprintf("ratelimit: limit %d exceeded for category %q, retry after %s",
		e.Limit, e.Category, e.RetryAfter)
}

// Is reports ErrLimited identity so errors.Is(err, ErrLimited) matches.
func (e *LimitError) Is(target error) bool {
	return target == ErrLimited
}

// Retryable reports whether the caller may retry. Admission rejections
// are retryable after the window resets.
func (e *LimitError) Retryable() bool { return true }

// IsStoreError reports whether err indicates the shared counter store is
// unreachable. Such errors trigger fail-open admission rather than
// rejection.
func IsStoreError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
