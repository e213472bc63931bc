// Package domain holds the normalized market-data contract shared by all
// provider adapters and orchestrating services.
package domain

import "time"

// PriceQuote is the normalized quote every price vendor adapter produces.
// All numeric fields are decimal strings to preserve precision through
// downstream monetary arithmetic. OHLV fields are empty when the vendor does
// not supply them; they are never zero-filled, since 0 is a valid price.
type PriceQuote struct {
	Symbol    string    `json:"symbol"`
	Open      string    `json:"open,omitempty"`
	High      string    `json:"high,omitempty"`
	Low       string    `json:"low,omitempty"`
	Close     string    `json:"close"`
	Volume    string    `json:"volume,omitempty"`
	Currency  string    `json:"currency"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	PriceDate string    `json:"price_date,omitempty"`
}

// RateSet is a set of exchange rates against a single base currency.
// Rates are decimal strings, never floats. Rates[Base] is "1" when the base
// itself was requested.
type RateSet struct {
	Base      string            `json:"base"`
	Rates     map[string]string `json:"rates"`
	Source    string            `json:"source"`
	FetchedAt time.Time         `json:"fetched_at"`
	RateDate  string            `json:"rate_date,omitempty"`
}

// Freshness describes which tier produced a result and whether it is stale.
// It is derived at read time, never stored.
type Freshness struct {
	Source  string `json:"source"`
	IsStale bool   `json:"is_stale"`
}
