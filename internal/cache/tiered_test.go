package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTiered(t *testing.T) *Tiered {
	t.Helper()
	file, err := NewFileCache(FileConfig{Directory: t.TempDir(), Logger: testLogger()})
	require.NoError(t, err)
	tiered, err := NewTiered(TieredConfig{
		Memory: NewMemoryCache(&MemoryConfig{MaxEntries: 100}),
		File:   file,
	})
	require.NoError(t, err)
	return tiered
}

func TestNewTiered_RequiresATier(t *testing.T) {
	_, err := NewTiered(TieredConfig{})
	assert.Error(t, err)
}

func TestTiered_SetWritesAllTiers(t *testing.T) {
	c := newTestTiered(t)

	c.Set("a", []byte("alpha"))

	_, ok := c.config.Memory.Get("a")
	assert.True(t, ok, "set should reach the memory tier")
	_, ok = c.config.File.Get("a")
	assert.True(t, ok, "set should reach the file tier")
}

func TestTiered_PromotionFromFileTier(t *testing.T) {
	// The zero-value config is memory-first, so promotion needs no flag
	c := newTestTiered(t)

	// Seed only the file tier, as after a process restart
	c.config.File.Set("a", []byte("alpha"))
	require.False(t, c.config.Memory.Has("a"))

	value, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("alpha"), value)

	// The hit was promoted; the next read is served from memory alone
	assert.True(t, c.config.Memory.Has("a"))
	fileHitsBefore := c.config.File.Stats().TotalHits
	_, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, fileHitsBefore, c.config.File.Stats().TotalHits,
		"second read should not touch the file tier")
}

func TestTiered_FileFirstLookupOrder(t *testing.T) {
	file, err := NewFileCache(FileConfig{Directory: t.TempDir(), Logger: testLogger()})
	require.NoError(t, err)
	c, err := NewTiered(TieredConfig{
		Memory:    NewMemoryCache(&MemoryConfig{MaxEntries: 10}),
		File:      file,
		FileFirst: true,
	})
	require.NoError(t, err)

	c.config.File.Set("a", []byte("alpha"))

	value, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("alpha"), value)
	assert.False(t, c.config.Memory.Has("a"), "file-first reads do not promote")
}

func TestTiered_GetMissesBothTiers(t *testing.T) {
	c := newTestTiered(t)

	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestTiered_GetOrLoad(t *testing.T) {
	c := newTestTiered(t)

	var calls atomic.Int64
	loader := func() ([]byte, error) {
		calls.Add(1)
		return []byte("computed"), nil
	}

	value, hit, err := c.GetOrLoad("k", loader)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("computed"), value)
	assert.Equal(t, int64(1), calls.Load())

	// A second call is a cache hit; the loader does not run again
	value, hit, err = c.GetOrLoad("k", loader)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("computed"), value)
	assert.Equal(t, int64(1), calls.Load())
}

func TestTiered_GetOrLoad_Error(t *testing.T) {
	c := newTestTiered(t)

	wantErr := errors.New("boom")
	_, _, err := c.GetOrLoad("k", func() ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, c.Has("k"), "failed loads are not cached")
}

func TestTiered_GetOrLoad_SingleFlight(t *testing.T) {
	c := newTestTiered(t)

	var calls atomic.Int64
	gate := make(chan struct{})
	loader := func() ([]byte, error) {
		calls.Add(1)
		<-gate
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, _, err := c.GetOrLoad("same-key", loader)
			assert.NoError(t, err)
			assert.Equal(t, []byte("v"), value)
		}()
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(),
		"concurrent loads of one key should share a single execution")
}

func TestTiered_DeleteRemovesFromAllTiers(t *testing.T) {
	c := newTestTiered(t)

	c.Set("a", []byte("v"))
	assert.True(t, c.Delete("a"))
	assert.False(t, c.Has("a"))
	assert.False(t, c.Delete("a"))
}

func TestTiered_KeysUnion(t *testing.T) {
	c := newTestTiered(t)

	c.config.Memory.Set("mem-only", []byte("1"))
	c.config.File.Set("file-only", []byte("2"))
	c.Set("both", []byte("3"))

	keys := c.Keys()
	assert.ElementsMatch(t, []string{"mem-only", "file-only", "both"}, keys)
}

func TestTiered_Clear(t *testing.T) {
	c := newTestTiered(t)

	c.Set("a", []byte("1"))
	c.Clear()

	assert.Empty(t, c.Keys())
	assert.Equal(t, 0, c.Stats().EntryCount)
}

func TestTiered_StatsCombined(t *testing.T) {
	c := newTestTiered(t)

	c.Set("a", []byte("v"))
	_, _ = c.Get("a")       // Memory hit
	_, _ = c.Get("missing") // Miss in both tiers

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.TotalHits)
	assert.Equal(t, int64(2), stats.TotalMisses)
	assert.Equal(t, 2, stats.EntryCount, "entry counted once per tier")
}

func TestTiered_GetDetailedStats(t *testing.T) {
	c := newTestTiered(t)

	c.Set("a", []byte("v"))

	detailed := c.GetDetailedStats()
	require.NotNil(t, detailed.Memory)
	require.NotNil(t, detailed.File)
	assert.Equal(t, 1, detailed.Memory.EntryCount)
	assert.Equal(t, 1, detailed.File.EntryCount)
}

func TestTiered_HealthHealthyByDefault(t *testing.T) {
	c := newTestTiered(t)

	health := c.GetCacheHealth()
	assert.True(t, health.Healthy)
	assert.Empty(t, health.Issues)
}

func TestTiered_HealthFlagsLowMemoryHitRate(t *testing.T) {
	file, err := NewFileCache(FileConfig{Directory: t.TempDir(), Logger: testLogger()})
	require.NoError(t, err)
	c, err := NewTiered(TieredConfig{
		Memory:           NewMemoryCache(nil),
		File:             file,
		MinHealthSamples: 10,
	})
	require.NoError(t, err)

	// All misses: 0% hit rate after enough samples
	for i := 0; i < 10; i++ {
		_, _ = c.config.Memory.Get(fmt.Sprintf("missing-%d", i))
	}

	health := c.GetCacheHealth()
	assert.False(t, health.Healthy)
	assert.NotEmpty(t, health.Issues)
	assert.NotEmpty(t, health.Recommendations)
}

func TestTiered_HealthIgnoresLowRateBeforeMinSamples(t *testing.T) {
	c := newTestTiered(t)

	// A handful of misses is not enough evidence to flag the tier
	for i := 0; i < 5; i++ {
		_, _ = c.Get(fmt.Sprintf("missing-%d", i))
	}

	health := c.GetCacheHealth()
	assert.True(t, health.Healthy)
}

func TestTiered_HealthFlagsMemoryBytesCeiling(t *testing.T) {
	file, err := NewFileCache(FileConfig{Directory: t.TempDir(), Logger: testLogger()})
	require.NoError(t, err)
	c, err := NewTiered(TieredConfig{
		Memory:             NewMemoryCache(nil),
		File:               file,
		MemoryBytesCeiling: 10,
	})
	require.NoError(t, err)

	c.config.Memory.Set("big", make([]byte, 64))

	health := c.GetCacheHealth()
	assert.False(t, health.Healthy)
	assert.NotEmpty(t, health.Issues)
}

func TestTiered_Synchronize(t *testing.T) {
	c := newTestTiered(t)

	c.config.File.Set("a", []byte("1"))
	c.config.File.Set("b", []byte("2"))
	c.config.Memory.Set("a", []byte("1")) // Already promoted

	promoted := c.Synchronize()
	assert.Equal(t, 1, promoted)
	assert.True(t, c.config.Memory.Has("b"))
}

func TestTiered_SynchronizeCap(t *testing.T) {
	c := newTestTiered(t)

	for i := 0; i < synchronizeLimit+20; i++ {
		c.config.File.Set(fmt.Sprintf("k%d", i), []byte("v"))
	}

	promoted := c.Synchronize()
	assert.Equal(t, synchronizeLimit, promoted)
}

func TestTiered_MemoryOnly(t *testing.T) {
	c, err := NewTiered(TieredConfig{Memory: NewMemoryCache(nil)})
	require.NoError(t, err)

	c.Set("a", []byte("v"))
	value, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	assert.Equal(t, 0, c.Synchronize(), "nothing to promote without a file tier")
}
