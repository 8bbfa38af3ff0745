// Package cache provides a small concurrent-safe in-memory store used
// for read-through caching of audit results and per-audit memoisation
// of external API responses.
package cache

import "sync"

// InMemoryCache is a typed, concurrent-safe key-value store. A stored
// zero value (including a nil pointer) still counts as present, which
// callers use to remember failed lookups.
type InMemoryCache[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewInMemoryCache creates an empty cache.
func NewInMemoryCache[V any]() *InMemoryCache[V] {
	return &InMemoryCache[V]{
		items: make(map[string]V),
	}
}

// Get retrieves a value. The second return reports whether the key was
// ever stored.
func (c *InMemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, found := c.items[key]
	return item, found
}

// Set adds or updates a value.
func (c *InMemoryCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

// Delete removes a value.
func (c *InMemoryCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of stored entries.
func (c *InMemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
