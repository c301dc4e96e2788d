// Package diskcache persists cached byte ranges to local disk, one file per
// cache key, with a JSON catalog tracking size and last-access time for
// eviction. It is a direct generalization of
// internal/nzbfilesystem/segcache's Cache: same hashed-filename layout,
// same temp-write-then-rename durability, same sort-by-last-access
// eviction sweep, and the same catalog.json persisted alongside the cached
// files so a restart doesn't have to re-stat every entry to rebuild size
// accounting.
package diskcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const catalogFileName = "catalog.json"

// Config controls where cached files live and how large the cache may grow.
type Config struct {
	// Fs is the filesystem cached files and the catalog are written to.
	// Defaults to the OS filesystem when nil.
	Fs afero.Fs
	// CachePath is the directory cached files and catalog.json live in.
	// It is created if it does not exist.
	CachePath string
	// MaxSizeBytes bounds total on-disk cache size; Evict removes the
	// least-recently-accessed entries once this is exceeded.
	MaxSizeBytes int64
	// ExpiryDuration removes an entry that hasn't been accessed in this
	// long, regardless of size pressure. Zero disables expiry.
	ExpiryDuration time.Duration
}

// catalogEntry is the JSON-persisted record for one cached range.
type catalogEntry struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	LastAccess time.Time `json:"last_access"`
}

// Stats is a point-in-time snapshot of cache occupancy and hit rate,
// mirroring segcache.Manager's StatsSnapshot.
type Stats struct {
	CacheHits   int64
	CacheMisses int64
	TotalSize   int64
	ItemCount   int
}

// Cache is the on-disk store itself: hashed-filename blob storage plus an
// in-memory catalog mirrored to catalog.json. It has no notion of a
// delegate or of block alignment; Reader in this package composes a Cache
// with those concerns to implement rangereader.RangeReader.
type Cache struct {
	fs   afero.Fs
	path string
	cfg  Config

	mu    sync.Mutex
	items map[string]*catalogEntry

	hits, misses int64
}

// NewCache opens (or initializes) a disk cache rooted at cfg.CachePath,
// loading any existing catalog.json and pruning entries whose backing file
// has gone missing.
func NewCache(cfg Config) (*Cache, error) {
	if cfg.CachePath == "" {
		return nil, fmt.Errorf("rangereader/diskcache: CachePath must not be empty")
	}
	if cfg.MaxSizeBytes <= 0 {
		return nil, fmt.Errorf("rangereader/diskcache: MaxSizeBytes must be positive")
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(cfg.CachePath, 0o755); err != nil {
		return nil, fmt.Errorf("rangereader/diskcache: creating cache directory: %w", err)
	}

	c := &Cache{fs: fs, path: cfg.CachePath, cfg: cfg, items: make(map[string]*catalogEntry)}
	if err := c.loadCatalog(); err != nil {
		return nil, err
	}
	return c, nil
}

// HashKey derives the on-disk filename for a logical cache key. Callers
// build the logical key from whatever identifies the cached content
// (resource identity plus byte range); HashKey hides the resulting
// filename behind a fixed-length hex digest the way segcache does.
func HashKey(logicalKey string) string {
	sum := sha256.Sum256([]byte(logicalKey))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) dataPath(hashed string) string {
	return c.path + "/" + hashed
}

func (c *Cache) catalogPath() string {
	return c.path + "/" + catalogFileName
}

// Has reports whether hashedKey is present in the catalog, without
// touching disk.
func (c *Cache) Has(hashedKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[hashedKey]
	return ok
}

// Get reads the cached bytes for hashedKey. A missing catalog entry is a
// plain cache miss (nil, false, nil). A catalog entry whose backing file is
// missing or short is treated as corruption: the entry is dropped so a
// subsequent Put can recreate it, and Get reports the miss via the bool
// return rather than an error, leaving the retry decision to the caller.
func (c *Cache) Get(hashedKey string) ([]byte, bool, error) {
	c.mu.Lock()
	entry, ok := c.items[hashedKey]
	c.mu.Unlock()
	if !ok {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false, nil
	}

	data, err := afero.ReadFile(c.fs, c.dataPath(hashedKey))
	if err != nil || int64(len(data)) != entry.Size {
		c.mu.Lock()
		delete(c.items, hashedKey)
		c.misses++
		c.mu.Unlock()
		return nil, false, nil
	}

	c.mu.Lock()
	entry.LastAccess = time.Now()
	c.hits++
	c.mu.Unlock()
	return data, true, nil
}

// Put writes data for hashedKey durably: to a uniquely-named temp file
// first, then renamed into place, so a crash mid-write never leaves a
// partially-written file visible under the real name.
func (c *Cache) Put(hashedKey string, data []byte) error {
	tmpPath := c.dataPath(hashedKey) + ".tmp." + uuid.NewString()
	if err := afero.WriteFile(c.fs, tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("rangereader/diskcache: writing temp file: %w", err)
	}
	if err := c.fs.Rename(tmpPath, c.dataPath(hashedKey)); err != nil {
		_ = c.fs.Remove(tmpPath)
		return fmt.Errorf("rangereader/diskcache: renaming into place: %w", err)
	}

	c.mu.Lock()
	c.items[hashedKey] = &catalogEntry{Key: hashedKey, Size: int64(len(data)), LastAccess: time.Now()}
	c.mu.Unlock()
	return nil
}

// Evict removes the least-recently-accessed entries until total size is at
// or below cfg.MaxSizeBytes.
func (c *Cache) Evict() error {
	c.mu.Lock()
	entries := make([]*catalogEntry, 0, len(c.items))
	var total int64
	for _, e := range c.items {
		entries = append(entries, e)
		total += e.Size
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastAccess.Before(entries[j].LastAccess) })

	var toRemove []*catalogEntry
	for _, e := range entries {
		if total <= c.cfg.MaxSizeBytes {
			break
		}
		toRemove = append(toRemove, e)
		total -= e.Size
	}
	for _, e := range toRemove {
		delete(c.items, e.Key)
	}
	c.mu.Unlock()

	for _, e := range toRemove {
		if err := c.fs.Remove(c.dataPath(e.Key)); err != nil && !isNotExist(err) {
			return fmt.Errorf("rangereader/diskcache: evicting %s: %w", e.Key, err)
		}
	}
	return nil
}

// Cleanup removes entries that haven't been accessed within
// cfg.ExpiryDuration. A zero ExpiryDuration disables expiry entirely.
func (c *Cache) Cleanup() error {
	if c.cfg.ExpiryDuration <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-c.cfg.ExpiryDuration)

	c.mu.Lock()
	var expired []*catalogEntry
	for _, e := range c.items {
		if e.LastAccess.Before(cutoff) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		delete(c.items, e.Key)
	}
	c.mu.Unlock()

	for _, e := range expired {
		if err := c.fs.Remove(c.dataPath(e.Key)); err != nil && !isNotExist(err) {
			return fmt.Errorf("rangereader/diskcache: expiring %s: %w", e.Key, err)
		}
	}
	return nil
}

// Stats returns a snapshot of cache occupancy and hit rate.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, e := range c.items {
		total += e.Size
	}
	return Stats{CacheHits: c.hits, CacheMisses: c.misses, TotalSize: total, ItemCount: len(c.items)}
}

// SaveCatalog persists the in-memory catalog to catalog.json, via the same
// temp-write-then-rename pattern as Put.
func (c *Cache) SaveCatalog() error {
	c.mu.Lock()
	entries := make([]*catalogEntry, 0, len(c.items))
	for _, e := range c.items {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("rangereader/diskcache: marshaling catalog: %w", err)
	}

	tmpPath := c.catalogPath() + ".tmp." + uuid.NewString()
	if err := afero.WriteFile(c.fs, tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("rangereader/diskcache: writing catalog temp file: %w", err)
	}
	if err := c.fs.Rename(tmpPath, c.catalogPath()); err != nil {
		_ = c.fs.Remove(tmpPath)
		return fmt.Errorf("rangereader/diskcache: renaming catalog into place: %w", err)
	}
	return nil
}

// loadCatalog reads catalog.json if present and prunes any entry whose
// backing data file no longer exists, the way segcache's loadCatalog does
// on startup.
func (c *Cache) loadCatalog() error {
	data, err := afero.ReadFile(c.fs, c.catalogPath())
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("rangereader/diskcache: reading catalog: %w", err)
	}

	var entries []*catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt catalog is not fatal: start fresh rather than fail
		// to open the cache entirely.
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if ok, _ := afero.Exists(c.fs, c.dataPath(e.Key)); ok {
			c.items[e.Key] = e
		}
	}
	return nil
}

func isNotExist(err error) bool {
	return err != nil && os.IsNotExist(err)
}
