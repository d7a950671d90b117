package ratelimit

import (
	"context"
	"sync"
	"time"
)

// LocalStore keeps fixed-window counters in process memory. It serves
// single-node deployments and tests; counters are not shared across
// replicas.
type LocalStore struct {
	mu       sync.Mutex
	counters map[string]*localWindow
	now      func() time.Time
}

type localWindow struct {
	count   int64
	expires time.Time
	window  time.Duration
}

var _ CounterStore = (*LocalStore)(nil)

// NewLocalStore builds an empty in-memory store.
func NewLocalStore() *LocalStore {
	return &LocalStore{
		counters: make(map[string]*localWindow),
		now:      time.Now,
	}
}

// Check implements CounterStore under a single mutex, which gives the
// same total ordering per key the Redis script provides.
func (s *LocalStore) Check(_ context.Context, key string, limit int64, window time.Duration) (CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.counters[key]
	if !ok || !now.Before(w.expires) {
		w = &localWindow{expires: now.Add(window), window: window}
		s.counters[key] = w
	}

	ttl := w.expires.Sub(now)
	if w.count >= limit {
		return CheckResult{Allowed: false, Count: w.count, TTL: ttl}, nil
	}
	w.count++
	return CheckResult{Allowed: true, Count: w.count, TTL: ttl}, nil
}

// Get implements CounterStore.
func (s *LocalStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.counters[key]
	if !ok || !s.now().Before(w.expires) {
		return 0, nil
	}
	return w.count, nil
}

// Reset implements CounterStore.
func (s *LocalStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

// Close implements CounterStore.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]*localWindow)
	return nil
}
