package price

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	infracache "github.com/amirasaad/marketdata/infra/cache"
	"github.com/amirasaad/marketdata/pkg/breaker"
	"github.com/amirasaad/marketdata/pkg/cache"
	"github.com/amirasaad/marketdata/pkg/domain"
	"github.com/amirasaad/marketdata/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPriceProvider struct {
	mock.Mock
	name string
}

func (m *mockPriceProvider) Name() string { return m.name }

func (m *mockPriceProvider) FetchPrices(ctx context.Context, symbols []string) ([]domain.PriceQuote, error) {
	args := m.Called(ctx, symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PriceQuote), args.Error(1)
}

func (m *mockPriceProvider) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quickRetry() retry.Config {
	return retry.Config{MaxAttempts: 1, Backoff: []time.Duration{time.Millisecond}, Timeout: time.Second}
}

func newService(t *testing.T, primary, fallback *mockPriceProvider, c cache.Client) *Service {
	t.Helper()
	reg := breaker.NewRegistry(breaker.DefaultConfig(), testLogger())
	cfg := Config{FreshTTL: time.Minute, StaleRetention: 24 * time.Hour, Retry: quickRetry()}
	if fallback == nil {
		// Avoid handing the service a typed nil interface.
		return New(primary, nil, reg, c, cfg, testLogger(), nil)
	}
	return New(primary, fallback, reg, c, cfg, testLogger(), nil)
}

func aaplQuote(source string) domain.PriceQuote {
	return domain.PriceQuote{
		Symbol:    "AAPL",
		Close:     "189.30",
		Currency:  "USD",
		Source:    source,
		FetchedAt: time.Now().UTC(),
	}
}

func TestGetPrices_PrimarySuccess(t *testing.T) {
	primary := &mockPriceProvider{name: "alpha"}
	fallback := &mockPriceProvider{name: "beta"}
	primary.On("FetchPrices", mock.Anything, []string{"AAPL"}).
		Return([]domain.PriceQuote{aaplQuote("alpha")}, nil).Once()

	svc := newService(t, primary, fallback, infracache.NewMemoryCache())
	res, err := svc.GetPrices(context.Background(), []string{"AAPL"})

	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "alpha", res.Provider)
	assert.False(t, res.Freshness.IsStale)
	require.Len(t, res.Prices, 1)
	assert.Equal(t, "189.30", res.Prices[0].Close)
	primary.AssertExpectations(t)
	fallback.AssertNotCalled(t, "FetchPrices", mock.Anything, mock.Anything)
}

func TestGetPrices_FreshCacheBypassesProviders(t *testing.T) {
	primary := &mockPriceProvider{name: "alpha"}
	primary.On("FetchPrices", mock.Anything, []string{"AAPL"}).
		Return([]domain.PriceQuote{aaplQuote("alpha")}, nil).Once()

	svc := newService(t, primary, nil, infracache.NewMemoryCache())
	ctx := context.Background()

	_, err := svc.GetPrices(ctx, []string{"AAPL"})
	require.NoError(t, err)

	res, err := svc.GetPrices(ctx, []string{"AAPL"})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, "alpha", res.Provider)
	assert.False(t, res.Freshness.IsStale)
	primary.AssertNumberOfCalls(t, "FetchPrices", 1)
}

func TestGetPrices_SkipCacheForcesFetch(t *testing.T) {
	primary := &mockPriceProvider{name: "alpha"}
	primary.On("FetchPrices", mock.Anything, []string{"AAPL"}).
		Return([]domain.PriceQuote{aaplQuote("alpha")}, nil).Twice()

	svc := newService(t, primary, nil, infracache.NewMemoryCache())
	ctx := context.Background()

	_, err := svc.GetPrices(ctx, []string{"AAPL"})
	require.NoError(t, err)

	res, err := svc.GetPrices(ctx, []string{"AAPL"}, Options{SkipCache: true})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	primary.AssertNumberOfCalls(t, "FetchPrices", 2)
}

func TestGetPrices_FallbackOnPrimaryFailure(t *testing.T) {
	primary := &mockPriceProvider{name: "alpha"}
	fallback := &mockPriceProvider{name: "beta"}
	primary.On("FetchPrices", mock.Anything, []string{"AAPL"}).
		Return(nil, domain.NewProviderError(domain.ErrProviderFailed, "alpha", "boom"))
	fallback.On("FetchPrices", mock.Anything, []string{"AAPL"}).
		Return([]domain.PriceQuote{aaplQuote("beta")}, nil).Once()

	svc := newService(t, primary, fallback, infracache.NewMemoryCache())
	res, err := svc.GetPrices(context.Background(), []string{"AAPL"})

	require.NoError(t, err)
	assert.Equal(t, "beta", res.Provider)
	assert.False(t, res.FromCache)
	fallback.AssertExpectations(t)
}

func TestGetPrices_StaleCacheWhenAllProvidersFail(t *testing.T) {
	primary := &mockPriceProvider{name: "alpha"}
	fallback := &mockPriceProvider{name: "beta"}
	failure := domain.NewProviderError(domain.ErrProviderFailed, "alpha", "down")
	primary.On("FetchPrices", mock.Anything, mock.Anything).Return(nil, failure)
	fallback.On("FetchPrices", mock.Anything, mock.Anything).Return(nil, failure)

	mem := infracache.NewMemoryCache()
	// Seed an entry already past the fresh window but within retention.
	meta := cache.Metadata{Source: "alpha", CachedAt: time.Now().Add(-2 * time.Hour)}
	require.NoError(t, mem.Set(context.Background(), "prices:AAPL",
		[]domain.PriceQuote{aaplQuote("alpha")}, meta, 24*time.Hour))

	svc := newService(t, primary, fallback, mem)
	res, err := svc.GetPrices(context.Background(), []string{"AAPL"})

	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.True(t, res.Freshness.IsStale)
	assert.Equal(t, "alpha", res.Provider)
	require.Len(t, res.Prices, 1)
}

func TestGetPrices_AllProvidersFailedNoCache(t *testing.T) {
	primary := &mockPriceProvider{name: "alpha"}
	fallback := &mockPriceProvider{name: "beta"}
	primary.On("FetchPrices", mock.Anything, mock.Anything).
		Return(nil, domain.NewProviderError(domain.ErrRateLimited, "alpha", "429"))
	fallback.On("FetchPrices", mock.Anything, mock.Anything).
		Return(nil, domain.NewProviderError(domain.ErrProviderFailed, "beta", "503"))

	svc := newService(t, primary, fallback, infracache.NoopCache{})
	res, err := svc.GetPrices(context.Background(), []string{"AAPL"})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, domain.IsCode(err, domain.ErrAllProvidersFailed))

	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	require.NotNil(t, perr.Err, "primary error should be preserved as cause")
}

func TestGetPrices_OpenBreakerSkipsProvider(t *testing.T) {
	primary := &mockPriceProvider{name: "alpha"}
	fallback := &mockPriceProvider{name: "beta"}
	primary.On("FetchPrices", mock.Anything, mock.Anything).
		Return(nil, domain.NewProviderError(domain.ErrProviderFailed, "alpha", "down"))
	fallback.On("FetchPrices", mock.Anything, []string{"AAPL"}).
		Return([]domain.PriceQuote{aaplQuote("beta")}, nil)

	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour}, testLogger())
	cfg := Config{FreshTTL: time.Minute, StaleRetention: 24 * time.Hour, Retry: quickRetry()}
	svc := New(primary, fallback, reg, infracache.NoopCache{}, cfg, testLogger(), nil)
	ctx := context.Background()

	_, err := svc.GetPrices(ctx, []string{"AAPL"})
	require.NoError(t, err, "fallback should have answered")
	primary.AssertNumberOfCalls(t, "FetchPrices", 1)

	// Circuit is now open; the primary must not even be dialed.
	_, err = svc.GetPrices(ctx, []string{"AAPL"})
	require.NoError(t, err)
	primary.AssertNumberOfCalls(t, "FetchPrices", 1)
	assert.Equal(t, "open", svc.CircuitBreakerStates()["alpha"].State)
}

func TestGetPrices_EmptySymbols(t *testing.T) {
	primary := &mockPriceProvider{name: "alpha"}
	svc := newService(t, primary, nil, infracache.NoopCache{})

	res, err := svc.GetPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Prices)
	primary.AssertNotCalled(t, "FetchPrices", mock.Anything, mock.Anything)
}

func TestGetPrice_MissingQuoteIsInvalidResponse(t *testing.T) {
	primary := &mockPriceProvider{name: "alpha"}
	primary.On("FetchPrices", mock.Anything, []string{"ZZZZ"}).
		Return([]domain.PriceQuote{}, nil)

	svc := newService(t, primary, nil, infracache.NoopCache{})
	_, err := svc.GetPrice(context.Background(), "ZZZZ")

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrInvalidResponse))
}

func TestHealthCheck_ReportsBothTiers(t *testing.T) {
	primary := &mockPriceProvider{name: "alpha"}
	fallback := &mockPriceProvider{name: "beta"}
	primary.On("HealthCheck", mock.Anything).Return(nil)
	fallback.On("HealthCheck", mock.Anything).Return(errors.New("unreachable"))

	svc := newService(t, primary, fallback, infracache.NoopCache{})
	health := svc.HealthCheck(context.Background())

	assert.True(t, health["primary"])
	assert.False(t, health["fallback"])
}

func TestCacheKey_SortedAndNormalized(t *testing.T) {
	assert.Equal(t, cacheKey([]string{"msft", " AAPL"}), cacheKey([]string{"AAPL", "MSFT"}))
}
