package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryConfig configures the in-memory cache tier
type MemoryConfig struct {
	MaxEntries int           // Capacity in entries (default 1000)
	DefaultTTL time.Duration // Applied by Set; zero means no expiry
	Clock      func() time.Time
}

func (c *MemoryConfig) withDefaults() MemoryConfig {
	out := MemoryConfig{MaxEntries: 1000, Clock: time.Now}
	if c != nil {
		if c.MaxEntries > 0 {
			out.MaxEntries = c.MaxEntries
		}
		out.DefaultTTL = c.DefaultTTL
		if c.Clock != nil {
			out.Clock = c.Clock
		}
	}
	return out
}

// MemoryCache is a thread-safe, fixed-capacity LRU cache with per-entry TTL.
// Capacity is entry-count based; SizeBytes is estimated for reporting only.
type MemoryCache struct {
	mu        sync.Mutex
	config    MemoryConfig
	items     map[string]*list.Element // key -> element holding *Entry
	evictList *list.List               // front = most recently used

	hits      int64
	misses    int64
	evictions int64
}

// NewMemoryCache creates a new in-memory LRU cache
func NewMemoryCache(config *MemoryConfig) *MemoryCache {
	return &MemoryCache{
		config:    config.withDefaults(),
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Get retrieves a value. An expired entry is treated as absent and removed.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}

	entry := elem.Value.(*Entry)
	now := c.config.Clock()
	if entry.Expired(now) {
		c.removeElement(elem)
		c.misses++
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessedAt = now
	c.evictList.MoveToFront(elem)
	c.hits++
	return entry.Value, true
}

// Set stores a value under the cache's default TTL
func (c *MemoryCache) Set(key string, value []byte) {
	c.SetTTL(key, value, c.config.DefaultTTL)
}

// SetTTL stores a value with an explicit TTL. Zero ttl means no expiry.
// An existing key is removed and reinserted, marking it most recently used.
func (c *MemoryCache) SetTTL(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.evictList.Remove(elem)
		delete(c.items, key)
	}

	// At capacity: evict the entry with the oldest access time
	for len(c.items) >= c.config.MaxEntries {
		c.evictOldest()
	}

	now := c.config.Clock()
	entry := &Entry{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    0,
		SizeBytes:      int64(len(value)),
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		entry.ExpiresAt = &expires
	}

	c.items[key] = c.evictList.PushFront(entry)
}

// Delete removes a key, reporting whether it was present
func (c *MemoryCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.evictList.Remove(elem)
	delete(c.items, key)
	return true
}

// Has reports whether a live (non-expired) entry exists without counting
// toward hit/miss statistics or access order
func (c *MemoryCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	return !elem.Value.(*Entry).Expired(c.config.Clock())
}

// Keys returns all keys currently held, including not-yet-swept expired ones
func (c *MemoryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

// Clear removes all entries. Calling it twice in a row is safe.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
}

// Stats returns a point-in-time view of the cache counters
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var totalBytes int64
	for _, elem := range c.items {
		totalBytes += elem.Value.(*Entry).SizeBytes
	}

	return Stats{
		EntryCount:  len(c.items),
		HitRate:     hitRate(c.hits, c.misses),
		TotalHits:   c.hits,
		TotalMisses: c.misses,
		TotalBytes:  totalBytes,
		Evictions:   c.evictions,
	}
}

// Optimize sweeps expired entries, then proactively evicts down to 80% of
// capacity so the next burst of writes does not pay eviction cost inline
func (c *MemoryCache) Optimize() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.config.Clock()
	for key, elem := range c.items {
		if elem.Value.(*Entry).Expired(now) {
			c.evictList.Remove(elem)
			delete(c.items, key)
			c.evictions++
		}
	}

	target := c.config.MaxEntries * 80 / 100
	for len(c.items) > target {
		c.evictOldest()
	}
}

// evictOldest removes the least-recently-used entry. Caller holds the lock.
func (c *MemoryCache) evictOldest() {
	elem := c.evictList.Back()
	if elem == nil {
		return
	}
	c.removeElement(elem)
	c.evictions++
}

func (c *MemoryCache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	delete(c.items, elem.Value.(*Entry).Key)
}
