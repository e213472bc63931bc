package breaker

import (
	"log/slog"
	"sync"
)

// Registry hands out one breaker instance per provider name so failure counts
// accumulate across all callers in the process.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a registry whose breakers share cfg.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it lazily. Repeated calls with
// the same name return the same instance.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.cfg, r.logger)
	r.breakers[name] = b
	return b
}

// Snapshots returns the state of every tracked breaker, keyed by provider.
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.Lock()
	tracked := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		tracked = append(tracked, b)
	}
	r.mu.Unlock()

	out := make(map[string]Snapshot, len(tracked))
	for _, b := range tracked {
		snap := b.Snapshot()
		out[snap.Provider] = snap
	}
	return out
}

// ResetAll forces every tracked breaker closed. Used in tests and operational
// recovery, not in the request path.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	tracked := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		tracked = append(tracked, b)
	}
	r.mu.Unlock()

	for _, b := range tracked {
		b.Reset()
	}
}
