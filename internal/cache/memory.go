package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is a bounded LRU whose entries also expire after a TTL
type MemoryCache struct {
	lru *expirable.LRU[string, Entry]
	ttl time.Duration
	now func() time.Time
}

// NewMemoryCache creates a memory cache holding at most size entries
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, Entry](size, nil, ttl),
		ttl: ttl,
		now: time.Now,
	}
}

// Get retrieves a value and marks it recently used
func (c *MemoryCache) Get(key string) (Entry, bool, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	// The LRU expires on wall time; StoredAt honours an injected clock too
	if c.ttl > 0 && c.now().Sub(e.StoredAt) > c.ttl {
		c.lru.Remove(key)
		return Entry{}, false, nil
	}
	e.Tier = TierMemory
	return e, true, nil
}

// Set stores a value, evicting the least recently used entry when full
func (c *MemoryCache) Set(key string, e Entry) error {
	if e.StoredAt.IsZero() {
		e.StoredAt = c.now()
	}
	c.lru.Add(key, e)
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) error {
	c.lru.Remove(key)
	return nil
}

// Clear removes all values from the cache
func (c *MemoryCache) Clear() error {
	c.lru.Purge()
	return nil
}

// Len returns the number of entries, including ones not yet swept
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}
