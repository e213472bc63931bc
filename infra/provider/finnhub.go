package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/amirasaad/marketdata/pkg/config"
	"github.com/amirasaad/marketdata/pkg/domain"
	"github.com/amirasaad/marketdata/pkg/provider"
)

const finnhubName = "finnhub"

// FinnhubProvider fetches real-time quotes from the Finnhub quote endpoint.
// Finnhub publishes no volume on this endpoint, so Volume stays omitted.
type FinnhubProvider struct {
	apiKey     string
	baseURL    string
	currency   string
	httpClient *http.Client
	logger     *slog.Logger
}

// finnhubQuote mirrors /quote. Numbers arrive as json.Number so prices stay
// exact decimal strings.
type finnhubQuote struct {
	Current   json.Number `json:"c"`
	High      json.Number `json:"h"`
	Low       json.Number `json:"l"`
	Open      json.Number `json:"o"`
	PrevClose json.Number `json:"pc"`
	Timestamp int64       `json:"t"`
}

// NewFinnhubProvider creates the adapter from config.
func NewFinnhubProvider(cfg config.Finnhub, logger *slog.Logger) *FinnhubProvider {
	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}
	return &FinnhubProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		currency:   currency,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger,
	}
}

func (p *FinnhubProvider) Name() string { return finnhubName }

func (p *FinnhubProvider) FetchPrices(ctx context.Context, symbols []string) ([]domain.PriceQuote, error) {
	if len(symbols) == 0 {
		return []domain.PriceQuote{}, nil
	}

	quotes := make([]domain.PriceQuote, 0, len(symbols))
	var lastErr error
	for _, symbol := range symbols {
		normalized := normalizeSymbol(symbol)
		u := fmt.Sprintf("%s/quote?symbol=%s", p.baseURL, url.QueryEscape(normalized))

		var q finnhubQuote
		header := http.Header{"X-Finnhub-Token": []string{p.apiKey}}
		if err := getJSON(ctx, p.httpClient, finnhubName, u, header, &q); err != nil {
			if domain.IsCode(err, domain.ErrRateLimited) && len(quotes) > 0 {
				return quotes, nil
			}
			p.logger.Warn("symbol fetch failed", "provider", finnhubName, "symbol", symbol, "error", err)
			lastErr = err
			continue
		}

		// Finnhub answers unknown symbols with an all-zero quote.
		if q.Current.String() == "0" || q.Current.String() == "" {
			continue
		}

		quote := domain.PriceQuote{
			Symbol:    normalized,
			Close:     q.Current.String(),
			Currency:  p.currency,
			Source:    finnhubName,
			FetchedAt: time.Now().UTC(),
		}
		if v := q.Open.String(); v != "" && v != "0" {
			quote.Open = v
		}
		if v := q.High.String(); v != "" && v != "0" {
			quote.High = v
		}
		if v := q.Low.String(); v != "" && v != "0" {
			quote.Low = v
		}
		if q.Timestamp > 0 {
			quote.PriceDate = time.Unix(q.Timestamp, 0).UTC().Format("2006-01-02")
		}
		quotes = append(quotes, quote)
	}

	if len(quotes) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return quotes, nil
}

func (p *FinnhubProvider) HealthCheck(ctx context.Context) error {
	u := fmt.Sprintf("%s/quote?symbol=AAPL", p.baseURL)
	var q finnhubQuote
	header := http.Header{"X-Finnhub-Token": []string{p.apiKey}}
	return getJSON(ctx, p.httpClient, finnhubName, u, header, &q)
}

var _ provider.Price = (*FinnhubProvider)(nil)
