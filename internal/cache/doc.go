// Package cache implements the layered result cache that lets depscan
// avoid re-analyzing unchanged inputs across runs.
//
// Two tiers share one contract: MemoryCache, a fixed-capacity LRU map
// with per-entry TTL, and FileCache, a content-addressed on-disk store
// (one file per entry, named by the SHA-256 digest of the key). Tiered
// composes them with memory-first lookup, write-through, and promotion
// of file-tier hits into memory.
//
//	mem := cache.NewMemoryCache(&cache.MemoryConfig{MaxEntries: 1000})
//	file, _ := cache.NewFileCache(cache.FileConfig{Directory: dir})
//	tiered, _ := cache.NewTiered(cache.TieredConfig{
//	    Memory: mem,
//	    File:   file,
//	})
//
//	value, hit, err := tiered.GetOrLoad(key, func() ([]byte, error) {
//	    return analyze(item)
//	})
//
// GetOrLoad serializes concurrent loads of the same key through
// singleflight, so one analyzer invocation services every concurrent
// requester and same-key file writes never race.
//
// Cache failures never propagate: corrupt entries are deleted and
// treated as misses, and file I/O errors are logged and counted. An
// unavailable cache degrades performance, not correctness.
package cache
