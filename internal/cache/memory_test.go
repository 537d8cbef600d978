package cache

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger discards log output in tests
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is an injectable time source for TTL tests
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(nil)

	c.Set("a", []byte("alpha"))

	value, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("alpha"), value)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := NewMemoryCache(&MemoryConfig{MaxEntries: 2})

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))

	// Reading "a" makes "b" the least recently used entry
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", []byte("3"))

	_, ok = c.Get("a")
	assert.True(t, ok, "recently read entry should survive")
	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("c")
	assert.True(t, ok)

	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestMemoryCache_UpdateExistingKey(t *testing.T) {
	c := NewMemoryCache(&MemoryConfig{MaxEntries: 2})

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))

	// Rewriting "a" must not evict anything
	c.Set("a", []byte("1b"))

	value, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1b"), value)
	assert.True(t, c.Has("b"))
	assert.Equal(t, int64(0), c.Stats().Evictions)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryCache(&MemoryConfig{MaxEntries: 10, Clock: clock.Now})

	c.SetTTL("short", []byte("v"), time.Minute)
	c.SetTTL("forever", []byte("v"), 0)

	clock.Advance(30 * time.Second)
	assert.True(t, c.Has("short"))

	clock.Advance(31 * time.Second)
	_, ok := c.Get("short")
	assert.False(t, ok, "entry past its TTL should read as absent")
	assert.False(t, c.Has("short"))

	// Zero TTL never expires
	_, ok = c.Get("forever")
	assert.True(t, ok)
}

func TestMemoryCache_ExpiredEntryRemovedOnGet(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryCache(&MemoryConfig{MaxEntries: 10, Clock: clock.Now})

	c.SetTTL("a", []byte("v"), time.Second)
	clock.Advance(2 * time.Second)

	_, ok := c.Get("a")
	require.False(t, ok)
	assert.Equal(t, 0, c.Stats().EntryCount)
}

func TestMemoryCache_DefaultTTL(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryCache(&MemoryConfig{MaxEntries: 10, DefaultTTL: time.Minute, Clock: clock.Now})

	c.Set("a", []byte("v"))
	clock.Advance(2 * time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache(nil)

	c.Set("a", []byte("v"))
	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"), "deleting an absent key reports false")
	assert.False(t, c.Has("a"))
}

func TestMemoryCache_ClearIdempotent(t *testing.T) {
	c := NewMemoryCache(nil)

	c.Set("a", []byte("v"))
	c.Set("b", []byte("v"))

	c.Clear()
	assert.Equal(t, 0, c.Stats().EntryCount)

	// Clearing an already empty cache is a no-op
	c.Clear()
	assert.Equal(t, 0, c.Stats().EntryCount)
}

func TestMemoryCache_Keys(t *testing.T) {
	c := NewMemoryCache(nil)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))

	keys := c.Keys()
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestMemoryCache_Stats(t *testing.T) {
	c := NewMemoryCache(nil)

	c.Set("a", []byte("four"))

	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, 1, stats.EntryCount)
	assert.Equal(t, int64(2), stats.TotalHits)
	assert.Equal(t, int64(1), stats.TotalMisses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
	assert.Equal(t, int64(4), stats.TotalBytes)
}

func TestMemoryCache_OptimizeSweepsExpired(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryCache(&MemoryConfig{MaxEntries: 10, Clock: clock.Now})

	c.SetTTL("dead", []byte("v"), time.Second)
	c.SetTTL("live", []byte("v"), time.Hour)
	clock.Advance(time.Minute)

	c.Optimize()

	assert.Equal(t, 1, c.Stats().EntryCount)
	assert.True(t, c.Has("live"))
}

func TestMemoryCache_OptimizeEvictsToEightyPercent(t *testing.T) {
	c := NewMemoryCache(&MemoryConfig{MaxEntries: 10})

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), []byte("v"))
	}
	require.Equal(t, 10, c.Stats().EntryCount)

	c.Optimize()

	assert.Equal(t, 8, c.Stats().EntryCount)

	// Oldest entries go first
	assert.False(t, c.Has("k0"))
	assert.False(t, c.Has("k1"))
	assert.True(t, c.Has("k9"))
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache(&MemoryConfig{MaxEntries: 100})

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%50)
				c.Set(key, []byte{byte(g)})
				_, _ = c.Get(key)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	assert.LessOrEqual(t, c.Stats().EntryCount, 100)
}
