package refdata

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig keeps entries until invalidated
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

type entry struct {
	value    string
	cachedAt time.Time
}

// Cached fronts a Lookup with a per-field cache. Lookup errors are not cached.
// Thread-safe for concurrent access
type Cached struct {
	next    Lookup
	config  CacheConfig
	mu      sync.RWMutex
	entries map[string]entry

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCached(next Lookup, config CacheConfig) *Cached {
	return &Cached{
		next:    next,
		config:  config,
		entries: make(map[string]entry),
	}
}

func cacheKey(instrument, field string) string {
	return instrument + "\x00" + field
}

func (c *Cached) Field(ctx context.Context, instrument, field string) (string, error) {
	key := cacheKey(instrument, field)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && (c.config.TTL <= 0 || time.Since(e.cachedAt) <= c.config.TTL) {
		c.hits.Add(1)
		return e.value, nil
	}
	c.misses.Add(1)

	v, err := c.next.Field(ctx, instrument, field)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = entry{value: v, cachedAt: time.Now()}
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops every cached field of instrument.
func (c *Cached) Invalidate(instrument string) {
	prefix := instrument + "\x00"

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

// InvalidateAll clears the cache, forcing a refresh on next lookup
func (c *Cached) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Stats returns cache hits and misses since creation.
func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
