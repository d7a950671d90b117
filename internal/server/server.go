// Package server wires the HTTP surface: health, admin introspection and
// the admission-guarded application handler.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/breaker"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/ratelimit"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/recovery"
)

type options struct {
	logger    *slog.Logger
	app       http.Handler
	limitOpts []ratelimit.MiddlewareOption
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAppHandler mounts the application handler behind the admission
// gate. Health and admin routes are served directly and never consume
// quota.
func WithAppHandler(h http.Handler) Option {
	return func(o *options) {
		o.app = h
	}
}

// WithMiddlewareOptions forwards options to the admission middleware
// guarding the application handler.
func WithMiddlewareOptions(opts ...ratelimit.MiddlewareOption) Option {
	return func(o *options) {
		o.limitOpts = append(o.limitOpts, opts...)
	}
}

// Server serves health checks, admin introspection and the guarded
// application routes on one listener.
type Server struct {
	gate     *ratelimit.Gate
	breakers *breaker.Registry
	coord    *recovery.Coordinator
	logger   *slog.Logger

	http *http.Server

	mu sync.Mutex
	ln net.Listener
}

// New builds a Server listening on addr.
func New(addr string, gate *ratelimit.Gate, breakers *breaker.Registry, coord *recovery.Coordinator, opts ...Option) *Server {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	s := &Server{
		gate:     gate,
		breakers: breakers,
		coord:    coord,
		logger:   o.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /admin/quota", s.handleQuota)
	mux.HandleFunc("DELETE /admin/quota", s.handleQuotaReset)
	mux.HandleFunc("GET /admin/breakers", s.handleBreakers)
	mux.HandleFunc("GET /admin/errors", s.handleErrors)
	if o.app != nil {
		mux.Handle("/", gate.Middleware(o.limitOpts...)(o.app))
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           requestID(s.logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start binds the listener and serves until Shutdown. Blocks.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr reports the bound address once Start has bound the listener.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.http.Addr
	}
	return s.ln.Addr().String()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
