// Package metrics exposes Prometheus collectors for the market-data layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors. All record methods are nil-safe so callers
// can run without metrics wired (tests, one-off tools).
type Metrics struct {
	ProviderRequestsTotal *prometheus.CounterVec
	FallbackTierTotal     *prometheus.CounterVec
	BreakerState          *prometheus.GaugeVec
	BreakerTransitions    *prometheus.CounterVec
}

// New registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		ProviderRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdata_provider_requests_total",
				Help: "Provider fetches by outcome (success, failure).",
			},
			[]string{"provider", "outcome"},
		),
		FallbackTierTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdata_fallback_tier_total",
				Help: "Which tier served a request (fresh_cache, primary, fallback, stale_cache, none).",
			},
			[]string{"service", "tier"},
		),
		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketdata_circuit_breaker_state",
				Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half-open).",
			},
			[]string{"provider"},
		),
		BreakerTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketdata_circuit_breaker_transitions_total",
				Help: "Circuit breaker state transitions per provider.",
			},
			[]string{"provider", "to"},
		),
	}
}

// RecordProviderRequest counts one provider fetch with its outcome.
func (m *Metrics) RecordProviderRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.ProviderRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordFallbackTier counts which tier served a request.
func (m *Metrics) RecordFallbackTier(service, tier string) {
	if m == nil {
		return
	}
	m.FallbackTierTotal.WithLabelValues(service, tier).Inc()
}

// RecordBreakerState tracks a breaker transition.
func (m *Metrics) RecordBreakerState(provider, to string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(provider).Set(state)
	m.BreakerTransitions.WithLabelValues(provider, to).Inc()
}
