package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strings"
)

// KeyFunc extracts the client identity from a request.
type KeyFunc func(r *http.Request) string

// SkipFunc exempts a request from admission control.
type SkipFunc func(r *http.Request) bool

// DenyHandler renders a rejection response.
type DenyHandler func(w http.ResponseWriter, r *http.Request, d Decision)

type middlewareOptions struct {
	keyFunc KeyFunc
	skip    SkipFunc
	deny    DenyHandler
	headers bool
}

// MiddlewareOption configures Gate.Middleware.
type MiddlewareOption func(*middlewareOptions)

func defaultMiddlewareOptions() *middlewareOptions {
	return &middlewareOptions{
		keyFunc: DefaultKeyFunc,
		deny:    defaultDenyHandler,
		headers: true,
	}
}

// WithKeyFunc replaces the client identity extractor.
func WithKeyFunc(fn KeyFunc) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.keyFunc = fn
		}
	}
}

// WithSkipFunc exempts matching requests from admission control.
func WithSkipFunc(fn SkipFunc) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.skip = fn
	}
}

// WithDenyHandler replaces the 429 response writer.
func WithDenyHandler(fn DenyHandler) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.deny = fn
		}
	}
}

// WithHeaders toggles the X-RateLimit response headers.
func WithHeaders(enabled bool) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.headers = enabled
	}
}

// DefaultKeyFunc identifies the caller by the X-User-ID header, falling
// back to the remote address without its port.
func DefaultKeyFunc(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type denyBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after"`
	Limit      int64  `json:"limit"`
	Remaining  int64  `json:"remaining"`
	Reset      int64  `json:"reset"`
}

func defaultDenyHandler(w http.ResponseWriter, _ *http.Request, d Decision) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(denyBody{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests, slow down and retry later.",
		RetryAfter: int64(math.Ceil(d.RetryAfter.Seconds())),
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		Reset:      d.ResetAt.Unix(),
	})
}

// Middleware enforces admission on every request. Rate limit headers go
// on admitted and rejected responses alike; fail-open decisions carry
// none, since no quota was enforced.
func (g *Gate) Middleware(opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := defaultMiddlewareOptions()
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.skip != nil && o.skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			d := g.Check(r.Context(), o.keyFunc(r), r.URL.Path)
			if o.headers {
				d.SetHeaders(w.Header())
			}
			if !d.Allowed {
				o.deny(w, r, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
