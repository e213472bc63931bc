package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/amirasaad/marketdata/pkg/config"
	"github.com/amirasaad/marketdata/pkg/domain"
	"github.com/amirasaad/marketdata/pkg/provider"
	"github.com/shopspring/decimal"
)

const exchangeRateAPIName = "exchangerate-api"

// ExchangeRateAPIProvider fetches the full USD-based conversion table from
// the exchangerate-api.com v6 endpoint.
type ExchangeRateAPIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// exchangeRateAPIResponse mirrors the v6 latest-rates response.
// See: https://www.exchangerate-api.com/docs/standard-requests
type exchangeRateAPIResponse struct {
	Result             string                 `json:"result"`
	TimeLastUpdateUnix int64                  `json:"time_last_update_unix"`
	BaseCode           string                 `json:"base_code"`
	ConversionRates    map[string]json.Number `json:"conversion_rates"`
	ErrorType          string                 `json:"error-type,omitempty"`
}

// NewExchangeRateAPIProvider creates the adapter from config.
func NewExchangeRateAPIProvider(cfg config.ExchangeRateAPI, logger *slog.Logger) *ExchangeRateAPIProvider {
	return &ExchangeRateAPIProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger,
	}
}

func (p *ExchangeRateAPIProvider) Name() string { return exchangeRateAPIName }

// NativeBase is the base currency the vendor publishes against.
func (p *ExchangeRateAPIProvider) NativeBase() string { return "USD" }

// FetchRates returns the vendor's USD-based rates for the requested symbols.
// Symbols the vendor does not publish are silently omitted.
func (p *ExchangeRateAPIProvider) FetchRates(ctx context.Context, symbols []string) (*domain.RateSet, error) {
	if len(symbols) == 0 {
		return &domain.RateSet{
			Base:      p.NativeBase(),
			Rates:     map[string]string{},
			Source:    exchangeRateAPIName,
			FetchedAt: time.Now().UTC(),
		}, nil
	}

	u := fmt.Sprintf("%s/%s/latest/%s", p.baseURL, p.apiKey, p.NativeBase())
	var resp exchangeRateAPIResponse
	if err := getJSON(ctx, p.httpClient, exchangeRateAPIName, u, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Result != "success" {
		return nil, domain.NewProviderError(domain.ErrInvalidResponse, exchangeRateAPIName,
			"vendor returned result=%q error-type=%q", resp.Result, resp.ErrorType)
	}

	rates := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		code := strings.ToUpper(strings.TrimSpace(symbol))
		raw, ok := resp.ConversionRates[code]
		if !ok {
			continue
		}
		if _, err := decimal.NewFromString(raw.String()); err != nil {
			return nil, domain.NewProviderError(domain.ErrInvalidResponse, exchangeRateAPIName,
				"non-numeric rate for %s: %q", code, raw.String())
		}
		rates[code] = raw.String()
	}

	set := &domain.RateSet{
		Base:      p.NativeBase(),
		Rates:     rates,
		Source:    exchangeRateAPIName,
		FetchedAt: time.Now().UTC(),
	}
	if resp.TimeLastUpdateUnix > 0 {
		set.RateDate = time.Unix(resp.TimeLastUpdateUnix, 0).UTC().Format("2006-01-02")
	}
	return set, nil
}

func (p *ExchangeRateAPIProvider) HealthCheck(ctx context.Context) error {
	u := fmt.Sprintf("%s/%s/latest/USD", p.baseURL, p.apiKey)
	var resp exchangeRateAPIResponse
	if err := getJSON(ctx, p.httpClient, exchangeRateAPIName, u, nil, &resp); err != nil {
		return err
	}
	if resp.Result != "success" {
		return domain.NewProviderError(domain.ErrInvalidResponse, exchangeRateAPIName,
			"vendor returned result=%q", resp.Result)
	}
	return nil
}

var _ provider.ExchangeRate = (*ExchangeRateAPIProvider)(nil)
