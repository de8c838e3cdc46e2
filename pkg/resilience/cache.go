package resilience

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TTLCache is a fixed-capacity LRU cache with per-entry TTL expiration.
// Get and Add are O(1); the least-recently-used entry is evicted when the
// cache is full. Safe for concurrent use.
type TTLCache[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
}

// NewTTLCache creates a cache with the given capacity and TTL.
func NewTTLCache[K comparable, V any](capacity int, ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		lru: expirable.NewLRU[K, V](capacity, nil, ttl),
	}
}

// Get returns the cached value if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// Add stores a value, evicting the LRU entry when at capacity.
func (c *TTLCache[K, V]) Add(key K, value V) {
	c.lru.Add(key, value)
}

// Remove drops the entry for key, if present.
func (c *TTLCache[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

// Len returns the number of live entries.
func (c *TTLCache[K, V]) Len() int {
	return c.lru.Len()
}

// Purge drops all entries.
func (c *TTLCache[K, V]) Purge() {
	c.lru.Purge()
}
