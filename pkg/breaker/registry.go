package breaker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Snapshot is a point-in-time view of one breaker.
type Snapshot struct {
	Name   string           `json:"name"`
	State  string           `json:"state"`
	Counts gobreaker.Counts `json:"counts"`
}

type registryOptions struct {
	defaults map[string][]Option
	common   []Option
	store    StateStore
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

// WithDefaults applies options to every breaker the registry creates.
func WithDefaults(opts ...Option) RegistryOption {
	return func(o *registryOptions) {
		o.common = append(o.common, opts...)
	}
}

// WithBreakerOptions applies options only to the named breaker, after
// the common defaults.
func WithBreakerOptions(name string, opts ...Option) RegistryOption {
	return func(o *registryOptions) {
		o.defaults[name] = append(o.defaults[name], opts...)
	}
}

// WithStateStore publishes every transition to the shared store.
func WithStateStore(store StateStore) RegistryOption {
	return func(o *registryOptions) {
		o.store = store
	}
}

// WithRegistryLogger sets the logger passed to created breakers.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(o *registryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Registry holds one breaker per dependency name, created lazily.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	opts     registryOptions
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		defaults: make(map[string][]Option),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		opts:     o,
	}
}

// Get returns the breaker for name, creating it on first use. The same
// name always yields the same instance; creation options only apply on
// the first call.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[name]; ok {
		return b
	}

	opts := make([]Option, 0, len(r.opts.common)+len(r.opts.defaults[name])+2)
	opts = append(opts, WithLogger(r.opts.logger))
	opts = append(opts, r.opts.common...)
	opts = append(opts, r.opts.defaults[name]...)
	if r.opts.store != nil {
		opts = append(opts, WithOnStateChange(r.publish))
	}

	b = New(name, opts...)
	r.breakers[name] = b
	return b
}

// Lookup returns an existing breaker without creating one.
func (r *Registry) Lookup(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Names lists registered breakers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot reports the state and counts of every registered breaker.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		snaps = append(snaps, Snapshot{
			Name:   b.Name(),
			State:  b.State().String(),
			Counts: b.Counts(),
		})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// publish pushes a transition to the shared store. Runs asynchronously:
// gobreaker invokes the transition hook while holding the breaker's own
// mutex, and reading Counts needs that mutex back. Publication is
// best-effort; a store failure never affects the breaker itself.
func (r *Registry) publish(name string, from, to gobreaker.State) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var counts gobreaker.Counts
		if b, ok := r.Lookup(name); ok {
			counts = b.Counts()
		}
		if err := r.opts.store.Publish(ctx, name, from, to, counts); err != nil {
			r.opts.logger.Warn("breaker state publication failed",
				slog.String("breaker", name),
				slog.String("error", err.Error()))
		}
	}()
}
