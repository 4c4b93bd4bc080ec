// Package cache provides the size-capped key/value cache used in front of
// the record store.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of entries kept when no size is configured.
const DefaultCapacity = 100

// Limited is a concurrency-safe map holding at most Capacity entries.
//
// Eviction is first-in first-out: Get does not refresh an entry, so the
// entry evicted on overflow is always the oldest insertion still present.
type Limited[K comparable, V any] struct {
	entries  *lru.Cache[K, V]
	capacity int
}

// NewLimited returns an empty cache. A non-positive capacity selects
// DefaultCapacity.
func NewLimited[K comparable, V any](capacity int) *Limited[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[K, V](capacity)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Limited[K, V]{entries: entries, capacity: capacity}
}

// Get returns the cached value for key.
func (c *Limited[K, V]) Get(key K) (V, bool) {
	return c.entries.Peek(key)
}

// Put stores value under key, evicting the oldest entry when full.
// It reports whether an eviction happened.
func (c *Limited[K, V]) Put(key K, value V) bool {
	return c.entries.Add(key, value)
}

// Remove drops a single key.
func (c *Limited[K, V]) Remove(key K) {
	c.entries.Remove(key)
}

// Purge drops every entry.
func (c *Limited[K, V]) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *Limited[K, V]) Len() int {
	return c.entries.Len()
}

// Capacity returns the maximum number of entries.
func (c *Limited[K, V]) Capacity() int {
	return c.capacity
}

// Keys returns the cached keys from oldest to newest.
func (c *Limited[K, V]) Keys() []K {
	return c.entries.Keys()
}
