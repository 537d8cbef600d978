package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// synchronizeLimit bounds how many file-tier keys one Synchronize call
	// may promote, to avoid unbounded memory growth from a single call
	synchronizeLimit = 100
)

// TieredConfig configures the two-tier coordinator and its health checks
type TieredConfig struct {
	Memory    *MemoryCache // Optional memory tier
	File      *FileCache   // Optional file tier
	FileFirst bool         // Query the file tier before memory (memory-first by default)

	// Health thresholds. Zero values take the documented defaults; they
	// are tuning knobs, not protocol guarantees.
	MinHealthSamples   int64   // Requests before hit rates are judged (default 100)
	MemoryHitRateMin   float64 // Flag memory tier below this rate (default 0.50)
	FileHitRateMin     float64 // Flag file tier below this rate (default 0.30)
	MemoryBytesCeiling int64   // Flag memory tier above this size (default 100MB)
}

func (c TieredConfig) withDefaults() TieredConfig {
	if c.MinHealthSamples <= 0 {
		c.MinHealthSamples = 100
	}
	if c.MemoryHitRateMin <= 0 {
		c.MemoryHitRateMin = 0.50
	}
	if c.FileHitRateMin <= 0 {
		c.FileHitRateMin = 0.30
	}
	if c.MemoryBytesCeiling <= 0 {
		c.MemoryBytesCeiling = 100 * 1024 * 1024
	}
	return c
}

// Health is the aggregate health report across tiers
type Health struct {
	Healthy         bool     `json:"healthy"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// DetailedStats exposes per-tier numbers alongside the combined view
type DetailedStats struct {
	Combined Stats  `json:"combined"`
	Memory   *Stats `json:"memory,omitempty"`
	File     *Stats `json:"file,omitempty"`
}

// Tiered composes an optional memory tier and an optional file tier
// behind one cache contract: ordered lookup, write-through to every
// enabled tier, and promotion of file-tier hits into the memory tier.
type Tiered struct {
	config TieredConfig

	// group serializes concurrent loads of the same key so one analyzer
	// invocation services every concurrent requester
	group singleflight.Group
}

// NewTiered creates a coordinator over the configured tiers with
// memory-first lookup enabled by default
func NewTiered(config TieredConfig) (*Tiered, error) {
	if config.Memory == nil && config.File == nil {
		return nil, fmt.Errorf("tiered cache: at least one tier is required")
	}
	return &Tiered{config: config.withDefaults()}, nil
}

// Get looks the key up tier by tier. In the default memory-first order a
// file-tier hit is promoted into the memory tier before returning. With
// FileFirst, the memory tier is still checked last as a fallback and no
// promotion happens.
func (t *Tiered) Get(key string) ([]byte, bool) {
	if t.config.FileFirst {
		if t.config.File != nil {
			if value, ok := t.config.File.Get(key); ok {
				return value, true
			}
		}
		if t.config.Memory != nil {
			if value, ok := t.config.Memory.Get(key); ok {
				return value, true
			}
		}
		return nil, false
	}

	if t.config.Memory != nil {
		if value, ok := t.config.Memory.Get(key); ok {
			return value, true
		}
	}
	if t.config.File != nil {
		if value, ok := t.config.File.Get(key); ok {
			if t.config.Memory != nil {
				t.config.Memory.Set(key, value)
			}
			return value, true
		}
	}
	return nil, false
}

// GetOrLoad returns the cached value for key, or runs loader exactly once
// across concurrent callers and writes the result through. Loader errors
// are returned to every caller and nothing is cached.
func (t *Tiered) GetOrLoad(key string, loader func() ([]byte, error)) (value []byte, hit bool, err error) {
	type loaded struct {
		value []byte
		hit   bool
	}

	v, err, _ := t.group.Do(key, func() (interface{}, error) {
		if value, ok := t.Get(key); ok {
			return loaded{value: value, hit: true}, nil
		}
		value, err := loader()
		if err != nil {
			return nil, err
		}
		t.Set(key, value)
		return loaded{value: value}, nil
	})
	if err != nil {
		return nil, false, err
	}

	result := v.(loaded)
	return result.value, result.hit, nil
}

// Set writes the value to every enabled tier concurrently. Tier writes
// are independent: success in one tier alongside failure in another is
// not itself an error (tiers swallow their own failures).
func (t *Tiered) Set(key string, value []byte) {
	t.setEach(func(tier Cache) { tier.Set(key, value) })
}

// SetTTL writes the value to every enabled tier with an explicit TTL
func (t *Tiered) SetTTL(key string, value []byte, ttl time.Duration) {
	t.setEach(func(tier Cache) { tier.SetTTL(key, value, ttl) })
}

func (t *Tiered) setEach(write func(Cache)) {
	var wg sync.WaitGroup
	for _, tier := range t.tiers() {
		wg.Add(1)
		go func(tier Cache) {
			defer wg.Done()
			write(tier)
		}(tier)
	}
	wg.Wait()
}

// Delete removes the key from every tier, reporting whether any tier held it
func (t *Tiered) Delete(key string) bool {
	deleted := false
	for _, tier := range t.tiers() {
		if tier.Delete(key) {
			deleted = true
		}
	}
	return deleted
}

// Has reports whether any tier holds a live entry for key
func (t *Tiered) Has(key string) bool {
	for _, tier := range t.tiers() {
		if tier.Has(key) {
			return true
		}
	}
	return false
}

// Keys returns the set union of keys across tiers
func (t *Tiered) Keys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, tier := range t.tiers() {
		for _, key := range tier.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

// Clear empties every tier
func (t *Tiered) Clear() {
	for _, tier := range t.tiers() {
		tier.Clear()
	}
}

// Stats aggregates hit/miss counts across tiers into one combined view
func (t *Tiered) Stats() Stats {
	var combined Stats
	for _, tier := range t.tiers() {
		s := tier.Stats()
		combined.EntryCount += s.EntryCount
		combined.TotalHits += s.TotalHits
		combined.TotalMisses += s.TotalMisses
		combined.TotalBytes += s.TotalBytes
		combined.Evictions += s.Evictions
	}
	combined.HitRate = hitRate(combined.TotalHits, combined.TotalMisses)
	return combined
}

// GetDetailedStats exposes per-tier numbers
func (t *Tiered) GetDetailedStats() DetailedStats {
	detailed := DetailedStats{Combined: t.Stats()}
	if t.config.Memory != nil {
		s := t.config.Memory.Stats()
		detailed.Memory = &s
	}
	if t.config.File != nil {
		s := t.config.File.Stats()
		detailed.File = &s
	}
	return detailed
}

// GetCacheHealth flags low per-tier hit rates (once enough requests have
// been observed) and memory usage above the configured ceiling
func (t *Tiered) GetCacheHealth() Health {
	health := Health{Healthy: true}

	if t.config.Memory != nil {
		s := t.config.Memory.Stats()
		if s.TotalHits+s.TotalMisses >= t.config.MinHealthSamples && s.HitRate < t.config.MemoryHitRateMin {
			health.Healthy = false
			health.Issues = append(health.Issues,
				fmt.Sprintf("memory tier hit rate %.0f%% below %.0f%%", s.HitRate*100, t.config.MemoryHitRateMin*100))
			health.Recommendations = append(health.Recommendations,
				"increase memory tier capacity or entry TTL")
		}
		if s.TotalBytes > t.config.MemoryBytesCeiling {
			health.Healthy = false
			health.Issues = append(health.Issues,
				fmt.Sprintf("memory tier holds %d bytes, above the %d byte ceiling", s.TotalBytes, t.config.MemoryBytesCeiling))
			health.Recommendations = append(health.Recommendations,
				"run Optimize or lower the memory tier capacity")
		}
	}

	if t.config.File != nil {
		s := t.config.File.Stats()
		if s.TotalHits+s.TotalMisses >= t.config.MinHealthSamples && s.HitRate < t.config.FileHitRateMin {
			health.Healthy = false
			health.Issues = append(health.Issues,
				fmt.Sprintf("file tier hit rate %.0f%% below %.0f%%", s.HitRate*100, t.config.FileHitRateMin*100))
			health.Recommendations = append(health.Recommendations,
				"verify cache keys are stable across runs")
		}
	}

	return health
}

// Synchronize opportunistically promotes file-tier keys not already
// present in memory, at most synchronizeLimit per call
func (t *Tiered) Synchronize() int {
	if t.config.Memory == nil || t.config.File == nil {
		return 0
	}

	promoted := 0
	for _, key := range t.config.File.Keys() {
		if promoted >= synchronizeLimit {
			break
		}
		if t.config.Memory.Has(key) {
			continue
		}
		if value, ok := t.config.File.Get(key); ok {
			t.config.Memory.Set(key, value)
			promoted++
		}
	}
	return promoted
}

func (t *Tiered) tiers() []Cache {
	tiers := make([]Cache, 0, 2)
	if t.config.Memory != nil {
		tiers = append(tiers, t.config.Memory)
	}
	if t.config.File != nil {
		tiers = append(tiers, t.config.File)
	}
	return tiers
}
