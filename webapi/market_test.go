package webapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	infracache "github.com/amirasaad/marketdata/infra/cache"
	"github.com/amirasaad/marketdata/pkg/breaker"
	"github.com/amirasaad/marketdata/pkg/domain"
	"github.com/amirasaad/marketdata/pkg/retry"
	"github.com/amirasaad/marketdata/pkg/service/price"
	"github.com/amirasaad/marketdata/pkg/service/rate"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPriceProvider struct {
	name  string
	fetch func(ctx context.Context, symbols []string) ([]domain.PriceQuote, error)
}

func (s *stubPriceProvider) Name() string { return s.name }
func (s *stubPriceProvider) FetchPrices(ctx context.Context, symbols []string) ([]domain.PriceQuote, error) {
	return s.fetch(ctx, symbols)
}
func (s *stubPriceProvider) HealthCheck(context.Context) error { return nil }

type stubRateProvider struct {
	name  string
	fetch func(ctx context.Context, symbols []string) (*domain.RateSet, error)
}

func (s *stubRateProvider) Name() string       { return s.name }
func (s *stubRateProvider) NativeBase() string { return "USD" }
func (s *stubRateProvider) FetchRates(ctx context.Context, symbols []string) (*domain.RateSet, error) {
	return s.fetch(ctx, symbols)
}
func (s *stubRateProvider) HealthCheck(context.Context) error { return nil }

func testApp(t *testing.T, pp *stubPriceProvider, rp *stubRateProvider) *fiber.App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := breaker.NewRegistry(breaker.DefaultConfig(), logger)
	retryCfg := retry.Config{MaxAttempts: 1, Backoff: []time.Duration{time.Millisecond}, Timeout: time.Second}

	priceSvc := price.New(pp, nil, reg, infracache.NoopCache{},
		price.Config{FreshTTL: time.Minute, StaleRetention: time.Hour, Retry: retryCfg}, logger, nil)
	rateSvc := rate.New(rp, nil, reg, infracache.NoopCache{},
		rate.Config{FreshTTL: time.Minute, StaleRetention: time.Hour, Retry: retryCfg}, logger, nil)

	return NewApp(priceSvc, rateSvc)
}

func healthyProviders() (*stubPriceProvider, *stubRateProvider) {
	pp := &stubPriceProvider{
		name: "alpha",
		fetch: func(_ context.Context, symbols []string) ([]domain.PriceQuote, error) {
			quotes := make([]domain.PriceQuote, 0, len(symbols))
			for _, s := range symbols {
				quotes = append(quotes, domain.PriceQuote{
					Symbol: s, Close: "189.30", Currency: "USD", Source: "alpha",
					FetchedAt: time.Now().UTC(),
				})
			}
			return quotes, nil
		},
	}
	rp := &stubRateProvider{
		name: "fx-a",
		fetch: func(context.Context, []string) (*domain.RateSet, error) {
			return &domain.RateSet{
				Base:      "USD",
				Rates:     map[string]string{"EUR": "0.92", "BRL": "5.01"},
				Source:    "fx-a",
				FetchedAt: time.Now().UTC(),
			}, nil
		},
	}
	return pp, rp
}

func TestGetPricesEndpoint(t *testing.T) {
	pp, rp := healthyProviders()
	app := testApp(t, pp, rp)

	req := httptest.NewRequest("GET", "/api/prices?symbols=AAPL,MSFT", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Prices fetched successfully", body.Message)
}

func TestGetPricesEndpoint_MissingSymbols(t *testing.T) {
	pp, rp := healthyProviders()
	app := testApp(t, pp, rp)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/prices", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
}

func TestGetPricesEndpoint_AllProvidersFailed(t *testing.T) {
	pp := &stubPriceProvider{
		name: "alpha",
		fetch: func(context.Context, []string) ([]domain.PriceQuote, error) {
			return nil, domain.NewProviderError(domain.ErrProviderFailed, "alpha", "down")
		},
	}
	_, rp := healthyProviders()
	app := testApp(t, pp, rp)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/prices?symbols=AAPL", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var pd ProblemDetails
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pd))
	assert.Equal(t, string(domain.ErrAllProvidersFailed), pd.Code)
}

func TestGetRateEndpoint_CrossRate(t *testing.T) {
	pp, rp := healthyProviders()
	app := testApp(t, pp, rp)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/rates/eur/brl", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Base   string `json:"base"`
			Target string `json:"target"`
			Rate   string `json:"rate"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "EUR", body.Data.Base)
	assert.Equal(t, "BRL", body.Data.Target)
	assert.NotEmpty(t, body.Data.Rate)
}

func TestGetRatesEndpoint_InvalidBase(t *testing.T) {
	pp, rp := healthyProviders()
	app := testApp(t, pp, rp)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/rates?base=EURO&targets=BRL", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	pp, rp := healthyProviders()
	app := testApp(t, pp, rp)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCircuitBreakersEndpoint(t *testing.T) {
	pp, rp := healthyProviders()
	app := testApp(t, pp, rp)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/circuit-breakers", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotNil(t, body.Data)
}
