// Package provider defines the vendor adapter contracts. Adapters are pure
// translation plus an HTTP call; circuit breaking and retries are applied by
// the orchestrating services, not here.
package provider

import (
	"context"

	"github.com/amirasaad/marketdata/pkg/domain"
)

// Price is implemented by every price vendor adapter.
type Price interface {
	Name() string
	// FetchPrices returns normalized quotes for the requested symbols.
	// An empty symbols slice returns an empty result without a network call.
	// Partial vendor success returns the successful subset; an error is
	// returned only when zero symbols succeeded.
	FetchPrices(ctx context.Context, symbols []string) ([]domain.PriceQuote, error)
	// HealthCheck probes vendor availability. It must not be routed through
	// a circuit breaker; a failing probe is not a production failure.
	HealthCheck(ctx context.Context) error
}

// ExchangeRate is implemented by every FX vendor adapter. Vendors publish
// rates against a single fixed base currency; cross-rate derivation for other
// bases is the orchestrating service's job.
type ExchangeRate interface {
	Name() string
	// NativeBase is the base currency the vendor publishes against.
	NativeBase() string
	// FetchRates returns the vendor's native-base rates for the requested
	// symbols. Symbols the vendor does not publish are silently omitted.
	// An empty symbols slice returns an empty result without a network call.
	FetchRates(ctx context.Context, symbols []string) (*domain.RateSet, error)
	HealthCheck(ctx context.Context) error
}
