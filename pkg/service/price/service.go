// Package price orchestrates price fetching across the fallback chain:
// fresh cache → primary provider → fallback provider → stale cache.
package price

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/marketdata/pkg/breaker"
	"github.com/amirasaad/marketdata/pkg/cache"
	"github.com/amirasaad/marketdata/pkg/domain"
	"github.com/amirasaad/marketdata/pkg/metrics"
	"github.com/amirasaad/marketdata/pkg/provider"
	"github.com/amirasaad/marketdata/pkg/retry"
)

const serviceName = "prices"

// Options tunes a single request.
type Options struct {
	// SkipCache bypasses the fresh-cache tier. The stale-cache tier still
	// applies when all providers fail.
	SkipCache bool
}

// Result is what callers get back: the quotes plus which tier produced them.
type Result struct {
	Prices    []domain.PriceQuote `json:"prices"`
	FromCache bool                `json:"from_cache"`
	Provider  string              `json:"provider"`
	Freshness domain.Freshness    `json:"freshness"`
}

// Config holds the service-level knobs.
type Config struct {
	// FreshTTL bounds how old a cache entry may be and still be served as fresh.
	FreshTTL time.Duration
	// StaleRetention is the cache write TTL; it bounds how long after expiry
	// an entry remains available for stale fallback.
	StaleRetention time.Duration
	Retry          retry.Config
}

// Service fetches prices with per-provider circuit breaking, bounded retries
// and cache fallback. Tiers run strictly sequentially; a primary success must
// pre-empt ever touching the fallback.
type Service struct {
	primary  provider.Price
	fallback provider.Price // nil when not configured
	breakers *breaker.Registry
	cache    cache.Client
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates the service. fallback and m may be nil.
func New(
	primary, fallback provider.Price,
	breakers *breaker.Registry,
	cacheClient cache.Client,
	cfg Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		primary:  primary,
		fallback: fallback,
		breakers: breakers,
		cache:    cacheClient,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// GetPrices returns quotes for the requested symbols. Partial per-symbol
// vendor failures degrade to fewer results than requested; callers that care
// must compare lengths. Only when every tier is exhausted does it return
// ALL_PROVIDERS_FAILED.
func (s *Service) GetPrices(ctx context.Context, symbols []string, opts ...Options) (*Result, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	if len(symbols) == 0 {
		return &Result{Prices: []domain.PriceQuote{}}, nil
	}

	key := cacheKey(symbols)

	if !opt.SkipCache {
		if res, ok := s.readCache(ctx, key, true); ok {
			s.metrics.RecordFallbackTier(serviceName, "fresh_cache")
			return res, nil
		}
	}

	quotes, err := s.fetchFrom(ctx, s.primary, symbols)
	if err == nil {
		s.writeCache(ctx, key, quotes, s.primary.Name())
		s.metrics.RecordFallbackTier(serviceName, "primary")
		return &Result{
			Prices:    quotes,
			Provider:  s.primary.Name(),
			Freshness: domain.Freshness{Source: s.primary.Name()},
		}, nil
	}
	primaryErr := err
	s.logger.Warn("primary provider failed, trying fallback",
		"service", serviceName, "provider", s.primary.Name(), "error", err)

	if s.fallback != nil {
		quotes, err = s.fetchFrom(ctx, s.fallback, symbols)
		if err == nil {
			s.writeCache(ctx, key, quotes, s.fallback.Name())
			s.metrics.RecordFallbackTier(serviceName, "fallback")
			return &Result{
				Prices:    quotes,
				Provider:  s.fallback.Name(),
				Freshness: domain.Freshness{Source: s.fallback.Name()},
			}, nil
		}
		s.logger.Warn("fallback provider failed, trying stale cache",
			"service", serviceName, "provider", s.fallback.Name(), "error", err)
	}

	if res, ok := s.readCache(ctx, key, false); ok {
		s.metrics.RecordFallbackTier(serviceName, "stale_cache")
		s.logger.Warn("serving stale cached prices",
			"service", serviceName, "source", res.Provider, "symbols", len(symbols))
		return res, nil
	}

	s.metrics.RecordFallbackTier(serviceName, "none")
	return nil, &domain.ProviderError{
		Code:    domain.ErrAllProvidersFailed,
		Op:      "getPrices",
		Message: "all providers failed and no cached data is available",
		Err:     primaryErr,
	}
}

// GetPrice is sugar over GetPrices for a single symbol.
func (s *Service) GetPrice(ctx context.Context, symbol string) (*domain.PriceQuote, error) {
	res, err := s.GetPrices(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	if len(res.Prices) == 0 {
		return nil, domain.NewProviderError(domain.ErrInvalidResponse, res.Provider,
			"no quote returned for symbol %s", symbol)
	}
	return &res.Prices[0], nil
}

// HealthCheck probes both providers concurrently. It deliberately bypasses
// the circuit breakers: a failing probe is not a production failure.
func (s *Service) HealthCheck(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	probe := func(tier string, p provider.Price) {
		defer wg.Done()
		err := p.HealthCheck(ctx)
		mu.Lock()
		out[tier] = err == nil
		mu.Unlock()
	}

	wg.Add(1)
	go probe("primary", s.primary)
	if s.fallback != nil {
		wg.Add(1)
		go probe("fallback", s.fallback)
	}
	wg.Wait()
	return out
}

// CircuitBreakerStates returns snapshots for this service's providers.
func (s *Service) CircuitBreakerStates() map[string]breaker.Snapshot {
	out := map[string]breaker.Snapshot{
		s.primary.Name(): s.breakers.Get(s.primary.Name()).Snapshot(),
	}
	if s.fallback != nil {
		out[s.fallback.Name()] = s.breakers.Get(s.fallback.Name()).Snapshot()
	}
	return out
}

// fetchFrom runs one provider behind its breaker and the retry executor.
func (s *Service) fetchFrom(ctx context.Context, p provider.Price, symbols []string) ([]domain.PriceQuote, error) {
	var quotes []domain.PriceQuote
	err := s.breakers.Get(p.Name()).Execute(ctx, func(ctx context.Context) error {
		var err error
		quotes, err = retry.Do(ctx, s.cfg.Retry, p.Name(), "fetchPrices", s.logger,
			func(ctx context.Context) ([]domain.PriceQuote, error) {
				return p.FetchPrices(ctx, symbols)
			})
		return err
	})
	if err != nil {
		s.metrics.RecordProviderRequest(p.Name(), "failure")
		return nil, err
	}
	s.metrics.RecordProviderRequest(p.Name(), "success")
	return quotes, nil
}

// readCache returns a cached result. With fresh=true, entries older than
// FreshTTL are rejected; with fresh=false any retained entry is returned and
// marked stale, attributed to the cached source rather than a live provider.
func (s *Service) readCache(ctx context.Context, key string, fresh bool) (*Result, bool) {
	if s.cache == nil || !s.cache.Enabled() {
		return nil, false
	}

	var quotes []domain.PriceQuote
	meta, ok, err := s.cache.Get(ctx, key, &quotes)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	isStale := time.Since(meta.CachedAt) > s.cfg.FreshTTL
	if fresh && isStale {
		return nil, false
	}

	return &Result{
		Prices:    quotes,
		FromCache: true,
		Provider:  meta.Source,
		Freshness: domain.Freshness{Source: meta.Source, IsStale: !fresh},
	}, true
}

func (s *Service) writeCache(ctx context.Context, key string, quotes []domain.PriceQuote, source string) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	meta := cache.Metadata{Source: source, CachedAt: time.Now().UTC()}
	if err := s.cache.Set(ctx, key, quotes, meta, s.cfg.StaleRetention); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// cacheKey scopes the entry to the sorted symbol list so differently-shaped
// requests don't collide.
func cacheKey(symbols []string) string {
	sorted := make([]string, len(symbols))
	for i, s := range symbols {
		sorted[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	sort.Strings(sorted)
	return "prices:" + strings.Join(sorted, ",")
}
