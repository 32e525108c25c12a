package cache

import "sync"

// Stats holds cache statistics.
type Stats struct {
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Bounded is a size-capped in-memory cache. When full, an arbitrary
// entry is evicted to make room. It is meant for request or run scoped
// memoization where recency tracking would cost more than a miss.
type Bounded[V any] struct {
	mu       sync.RWMutex
	entries  map[string]V
	maxItems int
	stats    Stats
}

// NewBounded creates a cache holding at most maxItems entries. A zero or
// negative maxItems falls back to a single entry.
func NewBounded[V any](maxItems int) *Bounded[V] {
	if maxItems <= 0 {
		maxItems = 1
	}
	return &Bounded[V]{
		entries:  make(map[string]V),
		maxItems: maxItems,
	}
}

// Get retrieves a cached value.
func (c *Bounded[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	return v, true
}

// Set stores a value, evicting if the cache is full.
func (c *Bounded[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxItems {
		for k := range c.entries {
			delete(c.entries, k)
			c.stats.Evictions++
			break
		}
	}
	c.entries[key] = value
}

// Delete removes a value.
func (c *Bounded[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry and resets the statistics.
func (c *Bounded[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]V)
	c.stats = Stats{}
}

// Stats returns cache statistics.
func (c *Bounded[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.Items = len(c.entries)
	return stats
}
