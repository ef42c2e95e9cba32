package resilience

import (
	"log/slog"
	"sort"
	"sync"
)

// BreakerRegistry hands out one CircuitBreaker per dependency name so every
// caller of a dependency shares the same failure accounting.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	defaults BreakerConfig
	logger   *slog.Logger
}

// NewBreakerRegistry creates a registry whose breakers use defaults for
// every threshold; the Name field of defaults is ignored.
func NewBreakerRegistry(defaults BreakerConfig, logger *slog.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
		logger:   logger,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cfg := r.defaults
	cfg.Name = name
	cb := NewCircuitBreaker(cfg, WithBreakerLogger(r.logger))
	r.breakers[name] = cb
	return cb
}

// Snapshots returns the state of every breaker, sorted by name.
func (r *BreakerRegistry) Snapshots() []BreakerSnapshot {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	snapshots := make([]BreakerSnapshot, 0, len(breakers))
	for _, cb := range breakers {
		snapshots = append(snapshots, cb.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name < snapshots[j].Name
	})
	return snapshots
}

// Reset closes the named breaker. It reports false if no such breaker exists.
func (r *BreakerRegistry) Reset(name string) bool {
	r.mu.Lock()
	cb, ok := r.breakers[name]
	r.mu.Unlock()
	if ok {
		cb.Reset()
	}
	return ok
}
