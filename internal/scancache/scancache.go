// Package scancache memoizes directory sizes between scans. Each entry
// carries a cheap fingerprint (mtime, direct child count, manifest mtime)
// so a changed package directory is re-walked while unchanged ones reuse
// the cached size.
package scancache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"pkgsweep/internal/logging"
)

// currentVersion is bumped on incompatible entry layout changes; a mismatch
// on load discards the cache instead of migrating.
const currentVersion = 1

// Entry is the cached metadata for one path.
type Entry struct {
	MTime       time.Time `json:"mtime"`
	Fingerprint string    `json:"fingerprint"`
	SizeBytes   int64     `json:"size_bytes"`
	CachedAt    time.Time `json:"cached_at"`
}

// fileFormat is the on-disk shape of the cache.
type fileFormat struct {
	Version   int              `json:"version"`
	LastSaved *time.Time       `json:"last_saved,omitempty"`
	Entries   map[string]Entry `json:"entries"`
}

// Stats summarizes cache contents and effectiveness.
type Stats struct {
	TotalEntries    int        `json:"total_entries"`
	TotalCachedSize int64      `json:"total_cached_size"`
	LastSaved       *time.Time `json:"last_saved,omitempty"`
	Hits            int        `json:"hits"`
	Misses          int        `json:"misses"`
}

// Cache is a path-keyed size memo safe for concurrent use; directory sizing
// may run in parallel with all lookups funneled through the mutex.
type Cache struct {
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	entries   map[string]Entry
	lastSaved *time.Time
	hits      int
	misses    int
}

// Load reads the cache at path, starting empty when the file is missing,
// corrupt, or from a different version.
func Load(path string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "scancache")

	c := &Cache{
		path:    path,
		logger:  logger,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to read scan cache",
				logging.String(logging.FieldEventType, "scancache_load_failed"),
				logging.Error(err),
				logging.String(logging.FieldImpact, "scan will recompute all sizes"))
		}
		return c
	}

	var file fileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		logger.Warn("failed to parse scan cache",
			logging.String(logging.FieldEventType, "scancache_parse_failed"),
			logging.Error(err),
			logging.String(logging.FieldImpact, "scan will recompute all sizes"))
		return c
	}
	if file.Version != currentVersion {
		logger.Warn("scan cache version mismatch",
			logging.String(logging.FieldEventType, "scancache_version_mismatch"),
			logging.Int("found", file.Version),
			logging.Int("want", currentVersion),
			logging.String(logging.FieldImpact, "cache discarded"))
		return c
	}

	if file.Entries != nil {
		c.entries = file.Entries
	}
	c.lastSaved = file.LastSaved
	return c
}

// Save persists the cache, creating parent directories as needed.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.lastSaved = &now

	data, err := json.MarshalIndent(fileFormat{
		Version:   currentVersion,
		LastSaved: c.lastSaved,
		Entries:   c.entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scan cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp cache: %w", err)
	}
	return nil
}

// fingerprint hashes a path's mtime, its direct child count, and the mtime
// of a contained package.json. Walking the tree is deliberately avoided.
func fingerprint(path string) (string, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", time.Time{}, err
	}
	mtime := info.ModTime()

	h := xxhash.New()
	h.WriteString(strconv.FormatInt(mtime.UnixNano(), 10))

	if info.IsDir() {
		if children, err := os.ReadDir(path); err == nil {
			h.WriteString(":children=" + strconv.Itoa(len(children)))
		}
		if pkgInfo, err := os.Stat(filepath.Join(path, "package.json")); err == nil {
			h.WriteString(":pkg=" + strconv.FormatInt(pkgInfo.ModTime().UnixNano(), 10))
		}
	}

	return strconv.FormatUint(h.Sum64(), 16), mtime, nil
}

// IsStale reports whether path needs re-scanning: unknown to the cache,
// missing, mtime changed, or fingerprint mismatch.
func (c *Cache) IsStale(path string) bool {
	c.mu.Lock()
	cached, ok := c.entries[path]
	c.mu.Unlock()
	if !ok {
		return true
	}

	fp, mtime, err := fingerprint(path)
	if err != nil {
		return true
	}
	if !mtime.Equal(cached.MTime) {
		return true
	}
	return fp != cached.Fingerprint
}

// Update records a freshly computed size for path.
func (c *Cache) Update(path string, sizeBytes int64) error {
	fp, mtime, err := fingerprint(path)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", path, err)
	}

	c.mu.Lock()
	c.entries[path] = Entry{
		MTime:       mtime,
		Fingerprint: fp,
		SizeBytes:   sizeBytes,
		CachedAt:    time.Now(),
	}
	c.mu.Unlock()
	return nil
}

// CachedSize returns the memoized size for path, or ok=false when the entry
// is absent or stale.
func (c *Cache) CachedSize(path string) (int64, bool) {
	if c.IsStale(path) {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[path]
	if !ok {
		return 0, false
	}
	return entry.SizeBytes, true
}

// GetOrComputeSize returns the cached size for path or invokes compute and
// memoizes the result. Hit and miss counts feed Stats.
func (c *Cache) GetOrComputeSize(path string, compute func() int64) int64 {
	if size, ok := c.CachedSize(path); ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return size
	}

	size := compute()
	if err := c.Update(path, size); err != nil {
		c.logger.Debug("failed to cache size",
			logging.String("path", path),
			logging.Error(err))
	}
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return size
}

// PruneMissing drops entries whose paths no longer exist, returning the
// number removed.
func (c *Cache) PruneMissing() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for path := range c.entries {
		if _, err := os.Lstat(path); err != nil {
			delete(c.entries, path)
			removed++
		}
	}
	return removed
}

// Clear empties the cache in memory; call Save to persist the removal.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	c.lastSaved = nil
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats summarizes the cache and this run's hit rate.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		TotalEntries: len(c.entries),
		LastSaved:    c.lastSaved,
		Hits:         c.hits,
		Misses:       c.misses,
	}
	for _, entry := range c.entries {
		stats.TotalCachedSize += entry.SizeBytes
	}
	return stats
}
