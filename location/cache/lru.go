// Package cache provides the expiring caches owned by the place resolver.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL is the expiry window for resolver results.
const DefaultTTL = 30 * time.Minute

// LRUCache is a bounded, concurrency-safe cache whose entries expire a fixed
// time after insertion. Expired entries are never returned; they are dropped
// lazily on access or eagerly by ClearExpired.
type LRUCache[K comparable, V any] struct {
	cache    map[K]*entry[K, V]
	order    *list.List
	now      func() time.Time
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
}

type entry[K comparable, V any] struct {
	insertedAt time.Time
	element    *list.Element
	key        K
	value      V
}

// Option configures an LRUCache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewLRUCache creates a cache holding at most capacity entries for ttl each.
func NewLRUCache[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) *LRUCache[K, V] {
	if capacity <= 0 {
		capacity = 512
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &LRUCache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		now:      o.now,
		cache:    make(map[K]*entry[K, V]),
		order:    list.New(),
	}
}

// Get returns the value for key if it is present and not expired.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e, c.now()) {
		c.removeEntry(e)
		var zero V
		return zero, false
	}

	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set stores value under key and restarts its expiry window.
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.cache[key]; ok {
		e.value = value
		e.insertedAt = now
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.cache) >= c.capacity {
		c.evictOldest()
	}

	e := &entry[K, V]{
		key:        key,
		value:      value,
		insertedAt: now,
	}
	e.element = c.order.PushFront(e)
	c.cache[key] = e
}

// Remove deletes key and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.cache[key]; ok {
		c.removeEntry(e)
		return true
	}
	return false
}

// ClearExpired drops every expired entry and returns how many were removed.
func (c *LRUCache[K, V]) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var toDelete []*entry[K, V]
	for _, e := range c.cache {
		if c.expired(e, now) {
			toDelete = append(toDelete, e)
		}
	}
	for _, e := range toDelete {
		c.removeEntry(e)
	}
	return len(toDelete)
}

// Clear removes all entries.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[K]*entry[K, V])
	c.order.Init()
}

// Size returns the number of stored entries, including expired ones that
// have not been swept yet.
func (c *LRUCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Capacity returns the maximum number of entries.
func (c *LRUCache[K, V]) Capacity() int {
	return c.capacity
}

// TTL returns the expiry window.
func (c *LRUCache[K, V]) TTL() time.Duration {
	return c.ttl
}

func (c *LRUCache[K, V]) expired(e *entry[K, V], now time.Time) bool {
	return now.Sub(e.insertedAt) >= c.ttl
}

// evictOldest removes the least recently used entry.
// Must be called with lock held.
func (c *LRUCache[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	if e, ok := oldest.Value.(*entry[K, V]); ok {
		c.removeEntry(e)
	}
}

// removeEntry must be called with lock held.
func (c *LRUCache[K, V]) removeEntry(e *entry[K, V]) {
	c.order.Remove(e.element)
	delete(c.cache, e.key)
}
