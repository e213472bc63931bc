// Package rate orchestrates exchange-rate fetching across the fallback
// chain, deriving cross rates when a vendor only publishes against its own
// base currency.
package rate

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
	"github.com/shopspring/decimal"
)

const serviceName = "rates"

// Options tunes a single request.
type Options struct {
	// SkipCache bypasses the fresh-cache tier. The stale-cache tier still
	// applies when all providers fail.
	SkipCache bool
}

// Result is what callers get back: the rate set plus which tier produced it.
type Result struct {
	Rates     *domain.RateSet  `json:"rates"`
	FromCache bool             `json:"from_cache"`
	Provider  string           `json:"provider"`
	Freshness domain.Freshness `json:"freshness"`
}

// Config holds the service-level knobs.
type Config struct {
	FreshTTL       time.Duration
	StaleRetention time.Duration
	Retry          retry.Config
}

// Service fetches exchange rates with per-provider circuit breaking, bounded
// retries and cache fallback. The cache stores the already-converted,
// request-scoped rate set, never the raw vendor payload, so repeated hits do
// not re-derive cross rates.
type Service struct {
	primary  provider.ExchangeRate
	fallback provider.ExchangeRate // nil when not configured
	breakers *breaker.Registry
	cache    cache.Client
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates the service. fallback and m may be nil.
func New(
	primary, fallback provider.ExchangeRate,
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

// GetRates returns rates from base into every requested target. Targets the
// vendor does not publish are omitted from the result; only a request where
// every tier fails returns ALL_PROVIDERS_FAILED.
func (s *Service) GetRates(ctx context.Context, base string, targets []string, opts ...Options) (*Result, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	base = strings.ToUpper(strings.TrimSpace(base))
	normalized := normalizeTargets(targets)
	if len(normalized) == 0 {
		return &Result{Rates: &domain.RateSet{Base: base, Rates: map[string]string{}}}, nil
	}

	// rate(X→X) is identically "1"; a request whose every target is the base
	// never needs cache or provider, whatever the vendor's native base is.
	if allSelf(normalized, base) {
		rates := make(map[string]string, len(normalized))
		for _, t := range normalized {
			rates[t] = "1"
		}
		return &Result{Rates: &domain.RateSet{
			Base:      base,
			Rates:     rates,
			FetchedAt: time.Now().UTC(),
		}}, nil
	}

	key := cacheKey(base, normalized)

	if !opt.SkipCache {
		if res, ok := s.readCache(ctx, key, true); ok {
			s.metrics.RecordFallbackTier(serviceName, "fresh_cache")
			return res, nil
		}
	}

	set, err := s.fetchFrom(ctx, s.primary, base, normalized)
	if err == nil {
		s.writeCache(ctx, key, set)
		s.metrics.RecordFallbackTier(serviceName, "primary")
		return &Result{
			Rates:     set,
			Provider:  s.primary.Name(),
			Freshness: domain.Freshness{Source: s.primary.Name()},
		}, nil
	}
	primaryErr := err
	s.logger.Warn("primary provider failed, trying fallback",
		"service", serviceName, "provider", s.primary.Name(), "error", err)

	if s.fallback != nil {
		set, err = s.fetchFrom(ctx, s.fallback, base, normalized)
		if err == nil {
			s.writeCache(ctx, key, set)
			s.metrics.RecordFallbackTier(serviceName, "fallback")
			return &Result{
				Rates:     set,
				Provider:  s.fallback.Name(),
				Freshness: domain.Freshness{Source: s.fallback.Name()},
			}, nil
		}
		s.logger.Warn("fallback provider failed, trying stale cache",
			"service", serviceName, "provider", s.fallback.Name(), "error", err)
	}

	if res, ok := s.readCache(ctx, key, false); ok {
		s.metrics.RecordFallbackTier(serviceName, "stale_cache")
		s.logger.Warn("serving stale cached rates",
			"service", serviceName, "source", res.Provider, "base", base)
		return res, nil
	}

	s.metrics.RecordFallbackTier(serviceName, "none")
	return nil, &domain.ProviderError{
		Code:    domain.ErrAllProvidersFailed,
		Op:      "getRates",
		Message: "all providers failed and no cached data is available",
		Err:     primaryErr,
	}
}

// GetRate is sugar over GetRates for a single target, returning the decimal
// string. A target silently omitted by the vendor is a distinguishable
// INVALID_RESPONSE error, never a missing map key for the caller to chase.
func (s *Service) GetRate(ctx context.Context, base, target string) (string, error) {
	target = strings.ToUpper(strings.TrimSpace(target))
	res, err := s.GetRates(ctx, base, []string{target})
	if err != nil {
		return "", err
	}
	rate, ok := res.Rates.Rates[target]
	if !ok {
		return "", domain.NewProviderError(domain.ErrInvalidResponse, res.Provider,
			"no rate for %s in %s-based result", target, res.Rates.Base)
	}
	return rate, nil
}

// HealthCheck probes both providers concurrently, bypassing the breakers.
func (s *Service) HealthCheck(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	probe := func(tier string, p provider.ExchangeRate) {
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

// fetchFrom runs one provider behind its breaker and the retry executor,
// then converts the vendor's native-base rates into the requested base.
func (s *Service) fetchFrom(ctx context.Context, p provider.ExchangeRate, base string, targets []string) (*domain.RateSet, error) {
	// The vendor table must include the requested base when deriving cross
	// rates; rate(X→X) never needs the network.
	need := make([]string, 0, len(targets)+1)
	for _, t := range targets {
		if t != base {
			need = append(need, t)
		}
	}
	if p.NativeBase() != base && len(need) > 0 {
		need = append(need, base)
	}

	var native *domain.RateSet
	err := s.breakers.Get(p.Name()).Execute(ctx, func(ctx context.Context) error {
		var err error
		native, err = retry.Do(ctx, s.cfg.Retry, p.Name(), "fetchRates", s.logger,
			func(ctx context.Context) (*domain.RateSet, error) {
				return p.FetchRates(ctx, need)
			})
		return err
	})
	if err != nil {
		s.metrics.RecordProviderRequest(p.Name(), "failure")
		return nil, err
	}
	s.metrics.RecordProviderRequest(p.Name(), "success")

	converted, err := convert(native, base, targets, p.Name())
	if err != nil {
		return nil, err
	}
	return converted, nil
}

// convert rebases the vendor's native rate set onto the requested base:
// rate(base→target) = rate(native→target) / rate(native→base). A missing
// native→base entry is INVALID_RESPONSE, never a silent NaN.
func convert(native *domain.RateSet, base string, targets []string, providerName string) (*domain.RateSet, error) {
	out := &domain.RateSet{
		Base:      base,
		Rates:     make(map[string]string, len(targets)),
		Source:    native.Source,
		FetchedAt: native.FetchedAt,
		RateDate:  native.RateDate,
	}

	sameBase := native.Base == base

	// Resolved on first use so a base-only request (rate(X→X) is always "1")
	// never fails on a vendor table that lacks the rebase entry.
	var baseRate decimal.Decimal
	baseRateResolved := false
	resolveBaseRate := func() error {
		if baseRateResolved {
			return nil
		}
		raw, ok := native.Rates[base]
		if !ok {
			return domain.NewProviderError(domain.ErrInvalidResponse, providerName,
				"vendor response is missing the %s rate needed to rebase from %s", base, native.Base)
		}
		r, err := decimal.NewFromString(raw)
		if err != nil || r.IsZero() {
			return domain.NewProviderError(domain.ErrInvalidResponse, providerName,
				"unusable %s rate %q for rebasing", base, raw)
		}
		baseRate = r
		baseRateResolved = true
		return nil
	}

	for _, target := range targets {
		if target == base {
			out.Rates[target] = "1"
			continue
		}
		raw, ok := native.Rates[target]
		if !ok {
			// Vendor does not publish this currency; degrade silently.
			continue
		}
		if sameBase {
			out.Rates[target] = raw
			continue
		}
		if err := resolveBaseRate(); err != nil {
			return nil, err
		}
		targetRate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, domain.NewProviderError(domain.ErrInvalidResponse, providerName,
				"non-numeric rate for %s: %q", target, raw)
		}
		out.Rates[target] = targetRate.Div(baseRate).String()
	}
	return out, nil
}

func (s *Service) readCache(ctx context.Context, key string, fresh bool) (*Result, bool) {
	if s.cache == nil || !s.cache.Enabled() {
		return nil, false
	}

	var set domain.RateSet
	meta, ok, err := s.cache.Get(ctx, key, &set)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if fresh && time.Since(meta.CachedAt) > s.cfg.FreshTTL {
		return nil, false
	}

	return &Result{
		Rates:     &set,
		FromCache: true,
		Provider:  meta.Source,
		Freshness: domain.Freshness{Source: meta.Source, IsStale: !fresh},
	}, true
}

func (s *Service) writeCache(ctx context.Context, key string, set *domain.RateSet) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	meta := cache.Metadata{Source: set.Source, CachedAt: time.Now().UTC()}
	if err := s.cache.Set(ctx, key, set, meta, s.cfg.StaleRetention); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func allSelf(targets []string, base string) bool {
	for _, t := range targets {
		if t != base {
			return false
		}
	}
	return true
}

func normalizeTargets(targets []string) []string {
	out := make([]string, 0, len(targets))
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		code := strings.ToUpper(strings.TrimSpace(t))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// cacheKey incorporates the base and the sorted target list so
// differently-scoped requests never collide.
func cacheKey(base string, targets []string) string {
	sorted := make([]string, len(targets))
	copy(sorted, targets)
	sort.Strings(sorted)
	return "rates:" + base + ":" + strings.Join(sorted, ",")
}
