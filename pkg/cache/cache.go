// Package cache provides a thread-safe LRU cache for parsed and built
// expressions.
//
// The projection orchestrator keys it by expression text and model type, so
// the same expression compiled against many rows is tokenized, parsed and
// built once.
//
// # Example
//
//	c := cache.New[string, *types.Expression](1024)
//	expr, err := c.GetOrAdd("Orders:count", func() (*types.Expression, error) {
//	    return parser.Parse("Orders:count")
//	})
package cache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is used when New is given a capacity <= 0.
const DefaultCapacity = 256

// Cache is a thread-safe LRU (Least Recently Used) cache.
// Once the capacity is reached, the least recently accessed entry is evicted.
//
// Safe for concurrent use by multiple goroutines.
type Cache[K comparable, V any] struct {
	lru      *lru.Cache[K, V]
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// Stats is a snapshot of the cache counters. Evictions counts every entry
// dropped, whether for capacity, Invalidate or Clear.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Len       int
	Capacity  int
}

// New creates a new LRU cache with the given capacity.
// If capacity <= 0, DefaultCapacity is used.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache[K, V]{capacity: capacity}
	l, err := lru.NewWithEvict(capacity, func(K, V) { c.evictions.Add(1) })
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	c.lru = l
	return c
}

// Get retrieves an entry and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set inserts or replaces an entry.
func (c *Cache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// GetOrAdd returns the entry for key, calling build to create it on a miss.
//
// build runs outside any lock, so two goroutines missing the same key may
// both build; the first value stored wins and is returned to both. Errors
// are returned and not cached.
func (c *Cache[K, V]) GetOrAdd(key K, build func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := build()
	if err != nil {
		var zero V
		return zero, err
	}
	if prev, ok, _ := c.lru.PeekOrAdd(key, v); ok {
		return prev, nil
	}
	return v, nil
}

// Len returns the number of entries currently in the cache.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}

// Capacity returns the maximum number of entries the cache can hold.
func (c *Cache[K, V]) Capacity() int {
	return c.capacity
}

// Invalidate removes a single entry from the cache.
func (c *Cache[K, V]) Invalidate(key K) {
	c.lru.Remove(key)
}

// Clear removes all entries from the cache.
func (c *Cache[K, V]) Clear() {
	c.lru.Purge()
}

// Stats returns the current counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Len:       c.lru.Len(),
		Capacity:  c.capacity,
	}
}
