package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// TTLCache is a bounded in-memory cache with LRU eviction and per-entry
// expiry. It is used for read-mostly records such as concluded tests, so
// hot-path state never hides behind implicit global caches.
type TTLCache struct {
	config    Config
	mu        sync.Mutex
	entries   map[string]*cacheEntry
	lruList   *lruList
	stats     Stats
	closeChan chan struct{}
	cleanupWG sync.WaitGroup
	closeOnce sync.Once
}

type cacheEntry struct {
	key       string
	value     interface{}
	expiresAt time.Time
	createdAt time.Time
	element   *lruElement
}

// LRU list implementation.
type lruElement struct {
	key  string
	prev *lruElement
	next *lruElement
}

type lruList struct {
	head *lruElement
	tail *lruElement
	size int
}

func newLRUList() *lruList {
	head := &lruElement{}
	tail := &lruElement{}
	head.next = tail
	tail.prev = head
	return &lruList{head: head, tail: tail}
}

func (l *lruList) moveToFront(elem *lruElement) {
	if elem.prev == l.head {
		return // Already at front
	}
	// Remove from current position
	elem.prev.next = elem.next
	elem.next.prev = elem.prev
	// Insert at front
	elem.prev = l.head
	elem.next = l.head.next
	l.head.next.prev = elem
	l.head.next = elem
}

func (l *lruList) pushFront(key string) *lruElement {
	elem := &lruElement{key: key}
	elem.prev = l.head
	elem.next = l.head.next
	l.head.next.prev = elem
	l.head.next = elem
	l.size++
	return elem
}

func (l *lruList) removeElement(elem *lruElement) {
	elem.prev.next = elem.next
	elem.next.prev = elem.prev
	l.size--
}

func (l *lruList) back() *lruElement {
	if l.tail.prev == l.head {
		return nil
	}
	return l.tail.prev
}

// NewTTLCache creates a new in-memory TTL cache.
func NewTTLCache(config Config) *TTLCache {
	// Set default cleanup interval if not specified
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}

	cache := &TTLCache{
		config:    config,
		entries:   make(map[string]*cacheEntry),
		lruList:   newLRUList(),
		closeChan: make(chan struct{}),
		stats: Stats{
			MaxEntries: int64(config.MaxEntries),
		},
	}

	// Start cleanup routine
	cache.cleanupWG.Add(1)
	go cache.cleanupRoutine()

	return cache
}

// Get retrieves a cached value by key.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		atomic.AddInt64(&c.stats.Misses, 1)
		return nil, false
	}

	// Check if expired
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.lruList.removeElement(entry.element)
		atomic.AddInt64(&c.stats.Entries, -1)
		atomic.AddInt64(&c.stats.Misses, 1)
		return nil, false
	}

	// Move to front of LRU list
	c.lruList.moveToFront(entry.element)

	atomic.AddInt64(&c.stats.Hits, 1)
	c.stats.LastAccess = time.Now() // Safe: protected by c.mu.Lock

	return entry.value, true
}

// Set stores a value with the given key and TTL. A zero ttl falls back to the
// configured default.
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	} else if c.config.DefaultTTL > 0 {
		expiresAt = time.Now().Add(c.config.DefaultTTL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if key already exists
	if existing, exists := c.entries[key]; exists {
		// Update existing entry
		existing.value = value
		existing.expiresAt = expiresAt
		c.lruList.moveToFront(existing.element)
	} else {
		// Evict entries if necessary
		if c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
			c.evictLRU()
		}

		// Add new entry
		element := c.lruList.pushFront(key)
		c.entries[key] = &cacheEntry{
			key:       key,
			value:     value,
			expiresAt: expiresAt,
			createdAt: time.Now(),
			element:   element,
		}
		atomic.AddInt64(&c.stats.Entries, 1)
	}

	atomic.AddInt64(&c.stats.Sets, 1)
	c.stats.LastAccess = time.Now() // Safe: protected by c.mu.Lock
}

// Delete removes a cached value by key.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists {
		delete(c.entries, key)
		c.lruList.removeElement(entry.element)
		atomic.AddInt64(&c.stats.Entries, -1)
		atomic.AddInt64(&c.stats.Deletes, 1)
	}
}

// Clear removes all cached values.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList = newLRUList()

	// Reset stats
	atomic.StoreInt64(&c.stats.Hits, 0)
	atomic.StoreInt64(&c.stats.Misses, 0)
	atomic.StoreInt64(&c.stats.Sets, 0)
	atomic.StoreInt64(&c.stats.Deletes, 0)
	atomic.StoreInt64(&c.stats.Entries, 0)
}

// Stats returns cache statistics.
func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	lastAccess := c.stats.LastAccess
	c.mu.Unlock()

	return Stats{
		Hits:       atomic.LoadInt64(&c.stats.Hits),
		Misses:     atomic.LoadInt64(&c.stats.Misses),
		Sets:       atomic.LoadInt64(&c.stats.Sets),
		Deletes:    atomic.LoadInt64(&c.stats.Deletes),
		Entries:    atomic.LoadInt64(&c.stats.Entries),
		MaxEntries: int64(c.config.MaxEntries),
		LastAccess: lastAccess,
	}
}

// Close stops the cleanup goroutine.
func (c *TTLCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeChan)
	})
	c.cleanupWG.Wait()
	return nil
}

func (c *TTLCache) evictLRU() {
	// Evict from the back of the LRU list until under the bound
	for c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		elem := c.lruList.back()
		if elem == nil {
			break
		}

		if _, exists := c.entries[elem.key]; exists {
			delete(c.entries, elem.key)
			atomic.AddInt64(&c.stats.Entries, -1)
		}
		c.lruList.removeElement(elem)
	}
}

func (c *TTLCache) cleanupRoutine() {
	defer c.cleanupWG.Done()

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeChan:
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *TTLCache) cleanupExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(c.entries, key)
			c.lruList.removeElement(entry.element)
			atomic.AddInt64(&c.stats.Entries, -1)
		}
	}
}
