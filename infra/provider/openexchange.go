package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirasaad/marketdata/pkg/config"
	"github.com/amirasaad/marketdata/pkg/domain"
	"github.com/amirasaad/marketdata/pkg/provider"
	"github.com/shopspring/decimal"
)

const openExchangeName = "openexchangerates"

// OpenExchangeProvider fetches the USD-based table from
// openexchangerates.org. The free plan only publishes USD as base, which is
// exactly the native-base contract.
type OpenExchangeProvider struct {
	appID      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type openExchangeResponse struct {
	Timestamp   int64                  `json:"timestamp"`
	Base        string                 `json:"base"`
	Rates       map[string]json.Number `json:"rates"`
	Error       bool                   `json:"error,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// NewOpenExchangeProvider creates the adapter from config.
func NewOpenExchangeProvider(cfg config.OpenExchange, logger *slog.Logger) *OpenExchangeProvider {
	return &OpenExchangeProvider{
		appID:      cfg.AppID,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger,
	}
}

func (p *OpenExchangeProvider) Name() string { return openExchangeName }

func (p *OpenExchangeProvider) NativeBase() string { return "USD" }

func (p *OpenExchangeProvider) FetchRates(ctx context.Context, symbols []string) (*domain.RateSet, error) {
	if len(symbols) == 0 {
		return &domain.RateSet{
			Base:      p.NativeBase(),
			Rates:     map[string]string{},
			Source:    openExchangeName,
			FetchedAt: time.Now().UTC(),
		}, nil
	}

	u := fmt.Sprintf("%s/latest.json?app_id=%s", p.baseURL, url.QueryEscape(p.appID))
	var resp openExchangeResponse
	if err := getJSON(ctx, p.httpClient, openExchangeName, u, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, domain.NewProviderError(domain.ErrInvalidResponse, openExchangeName,
			"vendor error: %s", resp.Description)
	}

	rates := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		code := strings.ToUpper(strings.TrimSpace(symbol))
		raw, ok := resp.Rates[code]
		if !ok {
			continue
		}
		if _, err := decimal.NewFromString(raw.String()); err != nil {
			return nil, domain.NewProviderError(domain.ErrInvalidResponse, openExchangeName,
				"non-numeric rate for %s: %q", code, raw.String())
		}
		rates[code] = raw.String()
	}

	set := &domain.RateSet{
		Base:      p.NativeBase(),
		Rates:     rates,
		Source:    openExchangeName,
		FetchedAt: time.Now().UTC(),
	}
	if resp.Timestamp > 0 {
		set.RateDate = time.Unix(resp.Timestamp, 0).UTC().Format("2006-01-02")
	}
	return set, nil
}

func (p *OpenExchangeProvider) HealthCheck(ctx context.Context) error {
	u := fmt.Sprintf("%s/latest.json?app_id=%s", p.baseURL, url.QueryEscape(p.appID))
	var resp openExchangeResponse
	return getJSON(ctx, p.httpClient, openExchangeName, u, nil, &resp)
}

var _ provider.ExchangeRate = (*OpenExchangeProvider)(nil)
