package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := NewTTLCache(Config{MaxEntries: 10, DefaultTTL: time.Minute})
	defer c.Close()

	c.Set("test-1", "value-1", 0)

	got, ok := c.Get("test-1")
	require.True(t, ok)
	assert.Equal(t, "value-1", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Entries)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache(Config{MaxEntries: 10, CleanupInterval: time.Hour})
	defer c.Close()

	c.Set("short", "v", 10*time.Millisecond)

	_, ok := c.Get("short")
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)

	_, ok = c.Get("short")
	assert.False(t, ok, "expired entry should not be returned")
	assert.Equal(t, int64(0), c.Stats().Entries)
}

func TestTTLCacheLRUEviction(t *testing.T) {
	c := NewTTLCache(Config{MaxEntries: 3, DefaultTTL: time.Minute})
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i, 0)
	}

	// Touch key-0 so key-1 becomes the LRU entry.
	_, ok := c.Get("key-0")
	require.True(t, ok)

	c.Set("key-3", 3, 0)

	_, ok = c.Get("key-1")
	assert.False(t, ok, "least recently used entry should be evicted")

	_, ok = c.Get("key-0")
	assert.True(t, ok)
	_, ok = c.Get("key-3")
	assert.True(t, ok)
}

func TestTTLCacheUpdateExisting(t *testing.T) {
	c := NewTTLCache(Config{MaxEntries: 2})
	defer c.Close()

	c.Set("k", 1, 0)
	c.Set("k", 2, 0)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, int64(1), c.Stats().Entries)
}

func TestTTLCacheDeleteAndClear(t *testing.T) {
	c := NewTTLCache(Config{MaxEntries: 10})
	defer c.Close()

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Stats().Entries)
}

func TestTTLCacheCloseIdempotent(t *testing.T) {
	c := NewTTLCache(Config{MaxEntries: 1})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
