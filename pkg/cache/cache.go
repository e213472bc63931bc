// Package cache defines the key/value store contract used for fresh-hit
// short-circuiting and stale fallback.
package cache

import (
	"context"
	"time"
)

// Metadata travels with every cached payload. Freshness is derived by the
// caller from CachedAt; the store itself only enforces the retention TTL.
type Metadata struct {
	Source   string    `json:"source"`
	CachedAt time.Time `json:"cached_at"`
}

// Client is a TTL key/value store for normalized market-data payloads.
// Implementations must be safe for concurrent use and must tolerate another
// writer updating a key between a read and a write (last write wins).
type Client interface {
	// Get unmarshals the cached payload for key into dest and returns its
	// metadata. The second return is false on a miss. Entries are returned
	// regardless of age as long as the store retains them; the caller decides
	// fresh versus stale from Metadata.CachedAt.
	Get(ctx context.Context, key string, dest any) (Metadata, bool, error)
	// Set stores value under key for the given retention TTL.
	Set(ctx context.Context, key string, value any, meta Metadata, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Enabled reports whether the backend is usable. When false, every read
	// is a miss and writes are dropped; neither may error.
	Enabled() bool
}
