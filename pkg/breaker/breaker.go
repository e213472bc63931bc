// Package breaker implements a per-provider circuit breaker. The
// Open→HalfOpen transition is evaluated lazily on read from
// (state, openedAt, now); no background timers.
package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/marketdata/pkg/domain"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config controls breaker thresholds.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before a half-open probe
	// is allowed.
	ResetTimeout time.Duration
	// OnStateChange is called outside the breaker lock after each transition.
	OnStateChange func(provider string, from, to State)
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     5 * time.Minute,
	}
}

// Snapshot is a read-only view of breaker state for operational dashboards.
type Snapshot struct {
	Provider    string     `json:"provider"`
	State       string     `json:"state"`
	Failures    int        `json:"failures"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	OpenedAt    *time.Time `json:"opened_at,omitempty"`
}

// CircuitBreaker guards calls to one upstream provider. All state mutation
// happens under a single mutex so concurrent callers always see a consistent
// failure count.
type CircuitBreaker struct {
	name   string
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	openedAt    time.Time
}

// New creates a closed breaker for the named provider.
func New(name string, cfg Config, logger *slog.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{name: name, cfg: cfg, logger: logger}
}

// Execute runs op under the breaker: it refuses immediately with CIRCUIT_OPEN
// while open, records success or failure otherwise, and rethrows op's error
// unchanged.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := op(ctx); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Allow reports whether a request may pass. A CIRCUIT_OPEN ProviderError is
// returned while the circuit is open and the reset timeout has not elapsed.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpenLocked(time.Now())
	if b.state == StateOpen {
		return domain.NewProviderError(
			domain.ErrCircuitOpen, b.name,
			"circuit breaker open since %s", b.openedAt.Format(time.RFC3339),
		)
	}
	return nil
}

// RecordSuccess resets the failure count; a successful half-open probe closes
// the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	var cb func()
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		cb = b.transitionLocked(StateClosed)
	}
	b.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// RecordFailure increments the failure count and opens the circuit at the
// threshold. A failed half-open probe re-opens immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	b.lastFailure = time.Now()
	var cb func()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			cb = b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		cb = b.transitionLocked(StateOpen)
	}
	b.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// State returns the current state, applying the lazy Open→HalfOpen transition.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked(time.Now())
	return b.state
}

// IsOpen reports whether calls are currently refused.
func (b *CircuitBreaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Snapshot returns a read-only view of the breaker.
func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked(time.Now())

	snap := Snapshot{
		Provider: b.name,
		State:    b.state.String(),
		Failures: b.failures,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		snap.LastFailure = &t
	}
	if !b.openedAt.IsZero() {
		t := b.openedAt
		snap.OpenedAt = &t
	}
	return snap
}

// Reset forces the breaker closed with zeroed counters. Operational escape
// hatch, not part of the normal state machine.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	b.state = StateClosed
	b.failures = 0
	b.lastFailure = time.Time{}
	b.openedAt = time.Time{}
	b.mu.Unlock()
}

// maybeHalfOpenLocked applies the lazy transition once the reset timeout has
// elapsed. Caller must hold b.mu.
func (b *CircuitBreaker) maybeHalfOpenLocked(now time.Time) {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.cfg.ResetTimeout {
		if cb := b.transitionLocked(StateHalfOpen); cb != nil {
			go cb()
		}
	}
}

// transitionLocked mutates state and returns the notification closure to run
// after the lock is released. Caller must hold b.mu.
func (b *CircuitBreaker) transitionLocked(to State) func() {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to
	switch to {
	case StateClosed:
		b.failures = 0
		b.openedAt = time.Time{}
	case StateOpen:
		b.openedAt = time.Now()
	}

	b.logger.Info("circuit breaker state change",
		"provider", b.name,
		"from", from.String(),
		"to", to.String(),
		"failures", b.failures,
	)
	if b.cfg.OnStateChange == nil {
		return nil
	}
	name := b.name
	fn := b.cfg.OnStateChange
	return func() { fn(name, from, to) }
}
