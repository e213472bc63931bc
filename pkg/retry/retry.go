// Package retry runs an operation with a per-attempt timeout and a bounded
// number of attempts separated by a caller-supplied backoff schedule. It is
// independent of circuit breaking; callers compose both.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/marketdata/pkg/domain"
)

// Config controls attempt count, backoff schedule and per-attempt timeout.
type Config struct {
	MaxAttempts int
	// Backoff[i] is the delay before attempt i+2. When attempts outnumber the
	// schedule, the last entry repeats.
	Backoff []time.Duration
	// Timeout bounds a single attempt, not the whole call.
	Timeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		Timeout:     10 * time.Second,
	}
}

type outcome[T any] struct {
	val T
	err error
}

// Do runs fn up to cfg.MaxAttempts times and returns the first success. On
// exhaustion it returns a single PROVIDER_FAILED ProviderError carrying the
// ordered per-attempt history, so callers never re-derive which attempt
// failed and why. A timed-out attempt counts like any other failure; the
// per-attempt detail preserves the original cause.
func Do[T any](
	ctx context.Context,
	cfg Config,
	providerName, opName string,
	logger *slog.Logger,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}

	attempts := make([]domain.Attempt, 0, cfg.MaxAttempts)
	var lastErr error

	for i := 0; i < cfg.MaxAttempts; i++ {
		if i > 0 {
			if err := sleep(ctx, backoffFor(cfg.Backoff, i-1)); err != nil {
				return zero, exhausted(providerName, opName, attempts, err)
			}
		}

		start := time.Now()
		val, err := runAttempt(ctx, cfg.Timeout, fn)
		elapsed := time.Since(start)
		if err == nil {
			return val, nil
		}

		lastErr = err
		attempts = append(attempts, domain.Attempt{
			Number:  i + 1,
			Error:   err.Error(),
			Elapsed: elapsed,
		})
		logger.Warn("attempt failed",
			"provider", providerName,
			"operation", opName,
			"attempt", i+1,
			"max_attempts", cfg.MaxAttempts,
			"elapsed", elapsed,
			"error", err,
		)

		if ctx.Err() != nil {
			return zero, exhausted(providerName, opName, attempts, ctx.Err())
		}
	}

	return zero, exhausted(providerName, opName, attempts, lastErr)
}

// runAttempt races fn against the per-attempt timeout. The operation receives
// the deadline through its context; a hung operation is abandoned once the
// deadline fires.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		val, err := fn(attemptCtx)
		done <- outcome[T]{val: val, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-attemptCtx.Done():
		return zero, fmt.Errorf("attempt timed out after %s: %w", timeout, attemptCtx.Err())
	}
}

func exhausted(providerName, opName string, attempts []domain.Attempt, cause error) error {
	return &domain.ProviderError{
		Code:     domain.ErrProviderFailed,
		Provider: providerName,
		Op:       opName,
		Message:  fmt.Sprintf("%s failed after %d attempts", opName, len(attempts)),
		Attempts: attempts,
		Err:      cause,
	}
}

func backoffFor(schedule []time.Duration, idx int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
