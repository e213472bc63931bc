package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirasaad/marketdata/pkg/config"
	"github.com/amirasaad/marketdata/pkg/domain"
	"github.com/amirasaad/marketdata/pkg/provider"
)

const alphaVantageName = "alphavantage"

// AlphaVantageProvider fetches daily quotes from the Alpha Vantage
// GLOBAL_QUOTE endpoint, one request per symbol.
type AlphaVantageProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// alphaVantageEnvelope mirrors the GLOBAL_QUOTE response. Alpha Vantage
// signals throttling with HTTP 200 plus a "Note" body, so both shapes are
// decoded together.
type alphaVantageEnvelope struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Open          string `json:"02. open"`
		High          string `json:"03. high"`
		Low           string `json:"04. low"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		LatestTrading string `json:"07. latest trading day"`
	} `json:"Global Quote"`
	Note         string `json:"Note,omitempty"`
	Information  string `json:"Information,omitempty"`
	ErrorMessage string `json:"Error Message,omitempty"`
}

// NewAlphaVantageProvider creates the adapter from config.
func NewAlphaVantageProvider(cfg config.AlphaVantage, logger *slog.Logger) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger,
	}
}

func (p *AlphaVantageProvider) Name() string { return alphaVantageName }

// FetchPrices fetches quotes symbol by symbol. Per-symbol vendor failures
// degrade to a smaller result; an error is returned only when every symbol
// failed.
func (p *AlphaVantageProvider) FetchPrices(ctx context.Context, symbols []string) ([]domain.PriceQuote, error) {
	if len(symbols) == 0 {
		return []domain.PriceQuote{}, nil
	}

	quotes := make([]domain.PriceQuote, 0, len(symbols))
	var lastErr error
	for _, symbol := range symbols {
		quote, err := p.fetchOne(ctx, symbol)
		if err != nil {
			if domain.IsCode(err, domain.ErrRateLimited) {
				// Throttled: further symbols would burn quota for nothing.
				if len(quotes) > 0 {
					p.logger.Warn("rate limited mid-batch, returning partial result",
						"provider", alphaVantageName, "fetched", len(quotes), "requested", len(symbols))
					return quotes, nil
				}
				return nil, err
			}
			p.logger.Warn("symbol fetch failed", "provider", alphaVantageName, "symbol", symbol, "error", err)
			lastErr = err
			continue
		}
		if quote != nil {
			quotes = append(quotes, *quote)
		}
	}

	if len(quotes) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return quotes, nil
}

func (p *AlphaVantageProvider) fetchOne(ctx context.Context, symbol string) (*domain.PriceQuote, error) {
	normalized := normalizeSymbol(symbol)
	u := fmt.Sprintf("%s/query?function=GLOBAL_QUOTE&symbol=%s&apikey=%s",
		p.baseURL, url.QueryEscape(normalized), url.QueryEscape(p.apiKey))

	var env alphaVantageEnvelope
	if err := getJSON(ctx, p.httpClient, alphaVantageName, u, nil, &env); err != nil {
		return nil, err
	}

	if env.Note != "" || env.Information != "" {
		return nil, domain.NewProviderError(domain.ErrRateLimited, alphaVantageName,
			"vendor throttled the request")
	}
	if env.ErrorMessage != "" {
		return nil, domain.NewProviderError(domain.ErrInvalidResponse, alphaVantageName,
			"vendor error: %s", env.ErrorMessage)
	}
	// Unknown symbols come back as an empty quote object, not an error.
	if env.GlobalQuote.Symbol == "" || env.GlobalQuote.Price == "" {
		return nil, nil
	}

	return &domain.PriceQuote{
		Symbol:    normalized,
		Open:      env.GlobalQuote.Open,
		High:      env.GlobalQuote.High,
		Low:       env.GlobalQuote.Low,
		Close:     env.GlobalQuote.Price,
		Volume:    env.GlobalQuote.Volume,
		Currency:  "USD",
		Source:    alphaVantageName,
		FetchedAt: time.Now().UTC(),
		PriceDate: env.GlobalQuote.LatestTrading,
	}, nil
}

// HealthCheck probes the vendor without counting toward any breaker.
func (p *AlphaVantageProvider) HealthCheck(ctx context.Context) error {
	u := fmt.Sprintf("%s/query?function=GLOBAL_QUOTE&symbol=IBM&apikey=%s",
		p.baseURL, url.QueryEscape(p.apiKey))
	var env alphaVantageEnvelope
	return getJSON(ctx, p.httpClient, alphaVantageName, u, nil, &env)
}

// normalizeSymbol strips the exchange suffix some callers carry over from
// other data sources, e.g. "AAPL.US" -> "AAPL".
func normalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.TrimSuffix(s, ".US")
}

var _ provider.Price = (*AlphaVantageProvider)(nil)
