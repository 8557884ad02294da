// Package cache provides a small in-process TTL cache used by the threshold
// manager and the raw-data query layer. The clock is injectable so expiry
// behavior is deterministic under test.
package cache

import (
	"sync"
	"time"
)

// Clock returns the current time. Production code passes time.Now.
type Clock func() time.Time

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type entry struct {
	value    interface{}
	expires  time.Time
	accessed time.Time
}

// TTLCache is a mutex-guarded map with per-entry expiry and LRU eviction
// once maxEntries is reached.
type TTLCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	clock      Clock

	hits      int64
	misses    int64
	evictions int64
}

// NewTTLCache creates a cache bounded to maxEntries. A nil clock defaults
// to time.Now.
func NewTTLCache(maxEntries int, clock Clock) *TTLCache {
	if clock == nil {
		clock = time.Now
	}
	return &TTLCache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		clock:      clock,
	}
}

// Get returns the cached value if present and unexpired.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	e, ok := c.entries[key]
	if !ok || now.After(e.expires) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false
	}
	e.accessed = now
	c.hits++
	return e.value, true
}

// Set stores value under key for ttl.
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &entry{
		value:    value,
		expires:  now.Add(ttl),
		accessed: now,
	}
}

// Purge drops every expired entry. The scheduler daemon calls this on a
// housekeeping tick instead of running a per-cache goroutine.
func (c *TTLCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear removes all entries and resets counters.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Stats returns a snapshot of the hit/miss/eviction counters.
func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
	}
}

// evictOldest removes the least recently accessed entry. Caller holds mu.
func (c *TTLCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.accessed.Before(oldest) {
			oldest = e.accessed
			oldestKey = k
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}
