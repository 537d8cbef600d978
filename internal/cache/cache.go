package cache

import "time"

// Cache is the contract shared by the memory tier, the file tier, and the
// tiered coordinator. Values are opaque byte slices; callers serialize.
// Cache operations never fail: an unavailable or corrupt tier degrades to
// a miss, never to an error.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	SetTTL(key string, value []byte, ttl time.Duration)
	Delete(key string) bool
	Has(key string) bool
	Keys() []string
	Clear()
	Stats() Stats
}

// Entry is a single cached value with its bookkeeping metadata.
// ExpiresAt, if set, is always >= CreatedAt.
type Entry struct {
	Key            string     `json:"key"`
	Value          []byte     `json:"value"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	AccessCount    int64      `json:"access_count"`
	SizeBytes      int64      `json:"size_bytes"` // Estimated, for reporting only
}

// Expired reports whether the entry's TTL has elapsed at the given time
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Stats describes a cache's running counters. It is derived on demand
// and never persisted independently of the cache it describes.
type Stats struct {
	EntryCount  int     `json:"entry_count"`
	HitRate     float64 `json:"hit_rate"`
	TotalHits   int64   `json:"total_hits"`
	TotalMisses int64   `json:"total_misses"`
	TotalBytes  int64   `json:"total_bytes"`
	Evictions   int64   `json:"evictions"`
}

// hitRate computes hits / (hits+misses), 0 when no requests were made
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
