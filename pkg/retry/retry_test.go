package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amirasaad/marketdata/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	cfg := Config{
		MaxAttempts: 3,
		Backoff:     []time.Duration{5 * time.Millisecond, 10 * time.Millisecond},
		Timeout:     time.Second,
	}

	calls := 0
	start := time.Now()
	val, err := Do(context.Background(), cfg, "primary", "fetchPrices", testLogger(),
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond,
		"must sleep backoff[0] then backoff[1] between attempts")
}

func TestDo_NoSleepBeforeFirstAttempt(t *testing.T) {
	cfg := Config{MaxAttempts: 3, Backoff: []time.Duration{time.Second}, Timeout: time.Second}

	start := time.Now()
	_, err := Do(context.Background(), cfg, "primary", "fetchPrices", testLogger(),
		func(context.Context) (int, error) { return 42, nil })

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDo_ExhaustionCarriesAttemptHistory(t *testing.T) {
	cfg := Config{MaxAttempts: 3, Backoff: []time.Duration{time.Millisecond}, Timeout: time.Second}

	calls := 0
	_, err := Do(context.Background(), cfg, "primary", "fetchRates", testLogger(),
		func(context.Context) (string, error) {
			calls++
			return "", errors.New("boom")
		})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.ErrProviderFailed, pe.Code)
	assert.Equal(t, "primary", pe.Provider)
	assert.Contains(t, pe.Message, "fetchRates failed after 3 attempts")
	require.Len(t, pe.Attempts, 3)
	for i, a := range pe.Attempts {
		assert.Equal(t, i+1, a.Number)
		assert.Contains(t, a.Error, "boom")
	}
}

func TestDo_TimeoutCountsAsFailedAttempt(t *testing.T) {
	cfg := Config{MaxAttempts: 2, Backoff: []time.Duration{time.Millisecond}, Timeout: 10 * time.Millisecond}

	_, err := Do(context.Background(), cfg, "primary", "fetchPrices", testLogger(),
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return "", ctx.Err()
		})

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.ErrProviderFailed, pe.Code)
	require.Len(t, pe.Attempts, 2)
	assert.Contains(t, pe.Attempts[0].Error, "timed out")
}

func TestDo_BackoffScheduleShorterThanAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 4, Backoff: []time.Duration{time.Millisecond}, Timeout: time.Second}

	calls := 0
	_, err := Do(context.Background(), cfg, "primary", "fetchPrices", testLogger(),
		func(context.Context) (string, error) {
			calls++
			return "", errors.New("boom")
		})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "last backoff entry repeats for extra attempts")
}

func TestDo_ParentCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, Backoff: []time.Duration{time.Minute}, Timeout: time.Second}

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, cfg, "primary", "fetchPrices", testLogger(),
			func(context.Context) (string, error) {
				calls++
				return "", errors.New("boom")
			})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls, "must not wait out a minute-long backoff after cancel")
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}
