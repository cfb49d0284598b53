package homepulse

import (
	"sync"
	"time"
)

// CacheStats contains counters for one cache instance.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// ttlCache is a bounded key→entry cache with TTL expiry on read and LRU
// eviction on insert. Entries are replaced wholesale, never mutated in
// place, so concurrent readers observe either the stale or the fresh value.
type ttlCache[V any] struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu        sync.Mutex
	entries   map[string]*ttlEntry[V]
	order     []string // oldest access first
	hits      int64
	misses    int64
	evictions int64
}

type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

func newTTLCache[V any](ttl time.Duration, maxEntries int) *ttlCache[V] {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &ttlCache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*ttlEntry[V]),
	}
}

// get returns the cached value if present and fresh. Stale entries are
// removed on read.
func (c *ttlCache[V]) get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.removeLocked(key)
		c.misses++
		return zero, false
	}
	c.promoteLocked(key)
	c.hits++
	return e.value, true
}

// put stores or replaces an entry, evicting the least recently used entry
// when full.
func (c *ttlCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &ttlEntry[V]{value: value, storedAt: c.now()}
		c.promoteLocked(key)
		return
	}
	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		c.removeLocked(c.order[0])
		c.evictions++
	}
	c.entries[key] = &ttlEntry[V]{value: value, storedAt: c.now()}
	c.order = append(c.order, key)
}

// delete removes one entry.
func (c *ttlCache[V]) delete(key string) {
	c.mu.Lock()
	c.removeLocked(key)
	c.mu.Unlock()
}

// clear removes all entries.
func (c *ttlCache[V]) clear() {
	c.mu.Lock()
	c.entries = make(map[string]*ttlEntry[V])
	c.order = nil
	c.mu.Unlock()
}

// stats returns a point-in-time copy of the cache counters.
func (c *ttlCache[V]) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *ttlCache[V]) removeLocked(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *ttlCache[V]) promoteLocked(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}
