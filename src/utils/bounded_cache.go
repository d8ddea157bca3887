package utils

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// -----------------------------------------------------------------------------
// BoundedCache is a fixed-capacity LRU map. Inserting past capacity evicts
// exactly the least recently used key in the same critical section.
// -----------------------------------------------------------------------------

type BoundedCache[K comparable, V any] struct {
	mu        sync.Mutex
	lru       *simplelru.LRU[K, V]
	capacity  int
	evictions uint64
}

// -----------------------------------------------------------------------------

// NewBoundedCache creates a cache holding at most capacity entries (min 1).
func NewBoundedCache[K comparable, V any](capacity int) *BoundedCache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	l, err := simplelru.NewLRU[K, V](capacity, nil)
	if err != nil {
		// only returned for size <= 0
		panic(err)
	}
	return &BoundedCache[K, V]{lru: l, capacity: capacity}
}

// -----------------------------------------------------------------------------

// Get returns the value and promotes the key to most recent.
func (c *BoundedCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// -----------------------------------------------------------------------------

// Peek returns the value without touching recency.
func (c *BoundedCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Peek(key)
}

// -----------------------------------------------------------------------------

// Set inserts or refreshes key. It reports whether an entry was evicted.
func (c *BoundedCache[K, V]) Set(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := c.lru.Add(key, value)
	if evicted {
		c.evictions++
	}
	return evicted
}

// -----------------------------------------------------------------------------

// Remove drops key if present.
func (c *BoundedCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// -----------------------------------------------------------------------------

// Clear drops every entry. It does not count as eviction.
func (c *BoundedCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// -----------------------------------------------------------------------------

// Keys returns keys from oldest to newest.
func (c *BoundedCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

func (c *BoundedCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *BoundedCache[K, V]) Cap() int { return c.capacity }

// Evictions returns the number of capacity evictions since creation.
func (c *BoundedCache[K, V]) Evictions() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}
