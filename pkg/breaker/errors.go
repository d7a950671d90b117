package breaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen marks a call rejected by an open breaker. Use errors.Is to
// detect it.
var ErrOpen = errors.New("breaker: circuit open")

// OpenError reports a call rejected without invoking the wrapped
// function.
type OpenError struct {
	Name  string
	State gobreaker.State
	err   error
}

// Error implements error.
func (e *OpenError) Error() string {
	return fmt.Sprintf("breaker: %q is %s, call rejected", e.Name, e.State)
}

// Unwrap exposes the underlying gobreaker error.
func (e *OpenError) Unwrap() error { return e.err }

// Is reports ErrOpen identity so errors.Is(err, ErrOpen) matches.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// Retryable reports false: retrying against an open breaker only feeds
// the rejection path.
func (e *OpenError) Retryable() bool { return false }

// IsOpen reports whether err is a breaker rejection.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}
