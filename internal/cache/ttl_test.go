package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock steps time manually for deterministic expiry tests.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestTTLCacheExpiry(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewTTLCache(10, clk.Now)

	c.Set("k", 42, 30*time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	clk.Advance(31 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry must expire after TTL")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestTTLCacheEvictsOldest(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewTTLCache(3, clk.Now)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, time.Minute)
		clk.Advance(time.Second)
	}

	// Touch k0 so k1 becomes the LRU victim.
	_, ok := c.Get("k0")
	require.True(t, ok)
	clk.Advance(time.Second)

	c.Set("k3", 3, time.Minute)

	_, ok = c.Get("k1")
	assert.False(t, ok, "k1 should have been evicted")
	_, ok = c.Get("k0")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestTTLCachePurge(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewTTLCache(10, clk.Now)

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)
	clk.Advance(2 * time.Second)

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Stats().Entries)
}
