package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	metadataFileName = "metadata.json"
	entryFileSuffix  = ".cache"
	metadataVersion  = 1

	// maintenanceInterval rate-limits full maintenance sweeps
	maintenanceInterval = 24 * time.Hour
	// evictFraction is the share of entries removed when the tier is full
	evictFraction = 0.25
)

// FileConfig configures the on-disk cache tier
type FileConfig struct {
	Directory  string        // Cache directory (required)
	MaxEntries int           // Capacity in entries (default 10000)
	DefaultTTL time.Duration // Applied by Set; zero means no expiry
	Clock      func() time.Time
	Logger     *slog.Logger
}

func (c FileConfig) withDefaults() FileConfig {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 10000
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// metadata tracks tier-level state in one file per cache directory
type metadata struct {
	Version      int       `json:"version"`
	Created      time.Time `json:"created"`
	LastCleanup  time.Time `json:"last_cleanup"`
	TotalEntries int       `json:"total_entries"`
}

// FileCache is a content-addressed, on-disk cache: one file per entry,
// named by the SHA-256 hex digest of the key, plus one metadata file.
// All I/O failures are swallowed (logged and counted) rather than
// propagated; a cache must never fail the caller's primary operation.
type FileCache struct {
	mu     sync.Mutex
	config FileConfig
	meta   metadata

	hits      int64
	misses    int64
	evictions int64
	ioErrors  int64
}

// NewFileCache creates a file-tier cache rooted at config.Directory
func NewFileCache(config FileConfig) (*FileCache, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("file cache: directory is required")
	}
	config = config.withDefaults()

	if err := os.MkdirAll(config.Directory, 0o750); err != nil {
		return nil, fmt.Errorf("file cache: create directory: %w", err)
	}

	c := &FileCache{config: config}
	c.loadMetadata()
	return c, nil
}

// Get reads and deserializes the entry file for key. A structurally
// corrupt file is deleted and treated as a miss; it self-heals by
// write-back on the next Set.
func (c *FileCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.readEntry(key)
	if !ok {
		c.misses++
		return nil, false
	}

	now := c.config.Clock()
	if entry.Expired(now) {
		c.removeEntry(key)
		c.misses++
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessedAt = now
	c.writeEntry(entry) // Best effort; access metadata loss is tolerable

	c.hits++
	return entry.Value, true
}

// Set stores a value under the cache's default TTL
func (c *FileCache) Set(key string, value []byte) {
	c.SetTTL(key, value, c.config.DefaultTTL)
}

// SetTTL stores a value with an explicit TTL, evicting the oldest 25% of
// entries first if the tier is at capacity
func (c *FileCache) SetTTL(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.config.Directory, 0o750); err != nil {
		c.ioError("create cache directory", err)
		return
	}

	existed := c.entryExists(key)
	if !existed && c.meta.TotalEntries >= c.config.MaxEntries {
		c.evictOldestQuarter()
	}

	now := c.config.Clock()
	entry := &Entry{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
		SizeBytes:      int64(len(value)),
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		entry.ExpiresAt = &expires
	}

	if c.writeEntry(entry) && !existed {
		c.meta.TotalEntries++
		c.saveMetadata()
	}
}

// Delete removes the entry file for key, reporting whether it existed
func (c *FileCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.entryExists(key) {
		return false
	}
	c.removeEntry(key)
	return true
}

// Has reports whether a live entry file exists for key
func (c *FileCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.readEntry(key)
	return ok && !entry.Expired(c.config.Clock())
}

// Keys lists the keys of all entry files, including expired ones
func (c *FileCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.meta.TotalEntries)
	c.forEachEntry(func(entry *Entry) {
		keys = append(keys, entry.Key)
	})
	return keys
}

// Clear removes every entry file and resets the metadata
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths, err := c.entryPaths()
	if err != nil {
		c.ioError("list cache directory", err)
		return
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.ioError("remove cache entry", err)
		}
	}
	c.meta.TotalEntries = 0
	c.saveMetadata()
}

// Stats returns a point-in-time view of the tier counters
func (c *FileCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var totalBytes int64
	entryCount := 0
	c.forEachEntry(func(entry *Entry) {
		totalBytes += entry.SizeBytes
		entryCount++
	})

	return Stats{
		EntryCount:  entryCount,
		HitRate:     hitRate(c.hits, c.misses),
		TotalHits:   c.hits,
		TotalMisses: c.misses,
		TotalBytes:  totalBytes,
		Evictions:   c.evictions,
	}
}

// IOErrors returns the count of swallowed file I/O failures
func (c *FileCache) IOErrors() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ioErrors
}

// Maintenance deletes expired entries and re-derives TotalEntries by
// recount for integrity. It is rate-limited to once per 24h; calls
// inside the window are no-ops.
func (c *FileCache) Maintenance() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.config.Clock()
	if now.Sub(c.meta.LastCleanup) < maintenanceInterval {
		return
	}

	count := 0
	c.forEachEntry(func(entry *Entry) {
		if entry.Expired(now) {
			c.removeEntryFile(entry.Key)
			return
		}
		count++
	})

	c.meta.TotalEntries = count
	c.meta.LastCleanup = now
	c.saveMetadata()
}

// Internal helpers. All callers hold c.mu.

// entryPath derives the content-addressed file name for a key
func (c *FileCache) entryPath(key string) string {
	digest := sha256.Sum256([]byte(key))
	return filepath.Join(c.config.Directory, hex.EncodeToString(digest[:])+entryFileSuffix)
}

func (c *FileCache) entryExists(key string) bool {
	_, err := os.Stat(c.entryPath(key))
	return err == nil
}

// readEntry loads and decodes one entry; decode failure deletes the file
func (c *FileCache) readEntry(key string) (*Entry, bool) {
	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		if !os.IsNotExist(err) {
			c.ioError("read cache entry", err)
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt file: self-heal by dropping it
		c.removeEntry(key)
		c.ioError("decode cache entry", err)
		return nil, false
	}
	return &entry, true
}

// writeEntry serializes an entry atomically (write-temp-then-rename) so
// concurrent writers to the same key never leave a torn file
func (c *FileCache) writeEntry(entry *Entry) bool {
	data, err := json.Marshal(entry)
	if err != nil {
		c.ioError("encode cache entry", err)
		return false
	}

	path := c.entryPath(entry.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		c.ioError("write cache entry", err)
		return false
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		c.ioError("rename cache entry", err)
		return false
	}
	return true
}

func (c *FileCache) removeEntry(key string) {
	if c.removeEntryFile(key) {
		if c.meta.TotalEntries > 0 {
			c.meta.TotalEntries--
		}
		c.saveMetadata()
	}
}

func (c *FileCache) removeEntryFile(key string) bool {
	err := os.Remove(c.entryPath(key))
	if err != nil && !os.IsNotExist(err) {
		c.ioError("remove cache entry", err)
		return false
	}
	return err == nil
}

// entryPaths lists all entry files in the cache directory
func (c *FileCache) entryPaths() ([]string, error) {
	dirEntries, err := os.ReadDir(c.config.Directory)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entryFileSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(c.config.Directory, de.Name()))
	}
	return paths, nil
}

// forEachEntry decodes every entry file, skipping unreadable ones
func (c *FileCache) forEachEntry(fn func(entry *Entry)) {
	paths, err := c.entryPaths()
	if err != nil {
		c.ioError("list cache directory", err)
		return
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			c.ioError("read cache entry", err)
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			_ = os.Remove(path)
			c.ioError("decode cache entry", err)
			continue
		}
		fn(&entry)
	}
}

// evictOldestQuarter reads all entries, sorts by LastAccessedAt ascending,
// and deletes the oldest 25% to make room for new writes
func (c *FileCache) evictOldestQuarter() {
	var entries []*Entry
	c.forEachEntry(func(entry *Entry) {
		entries = append(entries, entry)
	})
	if len(entries) == 0 {
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessedAt.Before(entries[j].LastAccessedAt)
	})

	toEvict := int(float64(len(entries)) * evictFraction)
	if toEvict < 1 {
		toEvict = 1
	}
	for _, entry := range entries[:toEvict] {
		if c.removeEntryFile(entry.Key) {
			c.evictions++
			if c.meta.TotalEntries > 0 {
				c.meta.TotalEntries--
			}
		}
	}
	c.saveMetadata()
}

func (c *FileCache) loadMetadata() {
	path := filepath.Join(c.config.Directory, metadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.ioError("read cache metadata", err)
		}
		c.meta = metadata{Version: metadataVersion, Created: c.config.Clock()}
		c.recountEntries()
		c.saveMetadata()
		return
	}

	if err := json.Unmarshal(data, &c.meta); err != nil {
		c.ioError("decode cache metadata", err)
		c.meta = metadata{Version: metadataVersion, Created: c.config.Clock()}
		c.recountEntries()
		c.saveMetadata()
	}
}

func (c *FileCache) saveMetadata() {
	data, err := json.Marshal(c.meta)
	if err != nil {
		c.ioError("encode cache metadata", err)
		return
	}

	path := filepath.Join(c.config.Directory, metadataFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		c.ioError("write cache metadata", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		c.ioError("rename cache metadata", err)
	}
}

func (c *FileCache) recountEntries() {
	paths, err := c.entryPaths()
	if err != nil {
		c.ioError("list cache directory", err)
		return
	}
	c.meta.TotalEntries = len(paths)
}

func (c *FileCache) ioError(op string, err error) {
	c.ioErrors++
	c.config.Logger.Warn("file cache operation failed", "op", op, "error", err)
}
