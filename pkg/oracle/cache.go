package oracle

import (
	"sync"
	"time"
)

// PriceCache holds recently fetched USD prices keyed by asset id. The cache
// is owned by the oracle client; there is no ambient eviction timer, callers
// drive Cleanup themselves.
type PriceCache struct {
	mu       sync.RWMutex
	cache    map[string]*cachedPrice
	cacheTTL time.Duration
}

type cachedPrice struct {
	price     float64
	timestamp time.Time
}

// NewPriceCache creates a cache with the given entry TTL.
func NewPriceCache(cacheTTL time.Duration) *PriceCache {
	return &PriceCache{
		cache:    make(map[string]*cachedPrice),
		cacheTTL: cacheTTL,
	}
}

// Get retrieves a cached price if it's still valid.
func (c *PriceCache) Get(assetID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.cache[assetID]
	if !exists {
		return 0, false
	}
	if time.Since(cached.timestamp) > c.cacheTTL {
		return 0, false
	}
	return cached.price, true
}

// Set stores a price with the current timestamp.
func (c *PriceCache) Set(assetID string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[assetID] = &cachedPrice{
		price:     price,
		timestamp: time.Now(),
	}
}

// Cleanup removes entries older than maxAge and returns how many were evicted.
func (c *PriceCache) Cleanup(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id, entry := range c.cache {
		if time.Since(entry.timestamp) > maxAge {
			delete(c.cache, id)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cached entries.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
