package ttlcache

import (
	"sync"
	"time"
)

type entry struct {
	key string
	seq uint64
	ts  time.Time
}

type item[V any] struct {
	value V
	seq   uint64
	ts    time.Time
}

// Cache keeps a bounded set of recently touched keys. Entries expire ttl after their
// last Set or Touch; when capacity is exceeded the least recently touched key goes first.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]item[V]
	order    []entry
	seq      uint64
	capacity int
	ttl      time.Duration
	onEvict  func(key string, value V)
	now      func() time.Time
}

// Option customises a Cache.
type Option[V any] func(*Cache[V])

// WithEvictHook registers fn to run for every entry removed by expiry, capacity or Delete.
// The hook runs without the cache lock held.
func WithEvictHook[V any](fn func(key string, value V)) Option[V] {
	return func(c *Cache[V]) { c.onEvict = fn }
}

// WithClock replaces time.Now.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// New creates a cache with the provided capacity and ttl.
func New[V any](capacity int, ttl time.Duration, opts ...Option[V]) *Cache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache[V]{
		items:    make(map[string]item[V], capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if it is still inside the ttl window.
// It does not extend the entry's lifetime; use Touch for that.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok && now.Sub(it.ts) <= c.ttl {
		return it.value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is present and unexpired.
func (c *Cache[V]) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set stores value under key and restarts its ttl.
func (c *Cache[V]) Set(key string, value V) {
	now := c.now()

	c.mu.Lock()
	evicted := c.store(key, value, now)
	c.mu.Unlock()

	c.fire(evicted)
}

// Touch restarts the ttl of an existing live key and returns its value.
func (c *Cache[V]) Touch(key string) (V, bool) {
	now := c.now()

	c.mu.Lock()
	it, ok := c.items[key]
	if !ok || now.Sub(it.ts) > c.ttl {
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	evicted := c.store(key, it.value, now)
	c.mu.Unlock()

	c.fire(evicted)
	return it.value, true
}

// Delete removes key and runs the evict hook if it was present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	it, ok := c.items[key]
	if ok {
		delete(c.items, key)
	}
	c.mu.Unlock()

	if ok {
		c.fire([]evictedItem[V]{{key: key, value: it.value}})
	}
}

// Sweep drops every expired entry.
func (c *Cache[V]) Sweep() {
	now := c.now()

	c.mu.Lock()
	evicted := c.compact(now)
	c.mu.Unlock()

	c.fire(evicted)
}

// Len returns the number of stored entries, expired ones included until the next compaction.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the stored keys, oldest first.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for _, e := range c.order {
		if it, ok := c.items[e.key]; ok && it.seq == e.seq {
			keys = append(keys, e.key)
		}
	}
	return keys
}

type evictedItem[V any] struct {
	key   string
	value V
}

// store writes key at now and compacts. Called with c.mu held.
func (c *Cache[V]) store(key string, value V, now time.Time) []evictedItem[V] {
	c.seq++
	c.items[key] = item[V]{value: value, seq: c.seq, ts: now}
	c.order = append(c.order, entry{key: key, seq: c.seq, ts: now})
	return c.compact(now)
}

func (c *Cache[V]) compact(now time.Time) []evictedItem[V] {
	cutoff := now.Add(-c.ttl)
	var evicted []evictedItem[V]

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if it, ok := c.items[oldest.key]; ok && it.seq == oldest.seq {
			delete(c.items, oldest.key)
			evicted = append(evicted, evictedItem[V]{key: oldest.key, value: it.value})
		}
	}
	return evicted
}

func (c *Cache[V]) fire(evicted []evictedItem[V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range evicted {
		c.onEvict(e.key, e.value)
	}
}
