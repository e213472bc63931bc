package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/amirasaad/marketdata/pkg/cache"
)

type memEntry struct {
	data      []byte
	meta      cache.Metadata
	expiresAt time.Time
}

// MemoryCache implements cache.Client with in-process storage. Used when no
// Redis address is configured, and in tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

// NewMemoryCache creates an in-memory cache with a background janitor.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{entries: make(map[string]memEntry)}
	go c.cleanup()
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string, dest any) (cache.Metadata, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return cache.Metadata{}, false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return cache.Metadata{}, false, err
	}
	return entry.meta, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value any, meta cache.Metadata, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = memEntry{data: data, meta: meta, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Enabled() bool { return true }

// cleanup drops expired entries periodically.
func (c *MemoryCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for key, entry := range c.entries {
			if now.After(entry.expiresAt) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}

// NoopCache is the disabled cache: every read is a miss, writes are dropped.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, any) (cache.Metadata, bool, error) {
	return cache.Metadata{}, false, nil
}

func (NoopCache) Set(context.Context, string, any, cache.Metadata, time.Duration) error {
	return nil
}

func (NoopCache) Delete(context.Context, string) error { return nil }

func (NoopCache) Enabled() bool { return false }

var (
	_ cache.Client = (*MemoryCache)(nil)
	_ cache.Client = NoopCache{}
)
