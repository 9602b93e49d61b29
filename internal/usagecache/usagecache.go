// Package usagecache tracks per-package usage metrics and byte sizes on top
// of a fixed-capacity LRU, and answers whether a package has earned its keep.
package usagecache

import (
	"time"

	"pkgsweep/internal/slotcache"
)

// Metrics records observed usage events for one package.
type Metrics struct {
	PackageKey           string     `json:"package_key"`
	LastAccess           time.Time  `json:"last_access"`
	LastScriptExecution  *time.Time `json:"last_script_execution,omitempty"`
	AccessCount          uint64     `json:"access_count"`
	ScriptExecutionCount uint64     `json:"script_execution_count"`
	LastSuccessfulBuild  *time.Time `json:"last_successful_build,omitempty"`
}

// Cache bounds tracked packages both by entry count and by total tracked
// bytes. Exceeding the byte budget evicts least-recently-used entries even
// when the count limit has headroom.
//
// Sequential state machine; callers must serialize access.
type Cache struct {
	entries     *slotcache.Cache[string, *Metrics]
	sizes       map[string]int64
	currentSize int64
	maxSize     int64
	now         func() time.Time
}

// New creates a cache limited to maxPackages entries and maxSizeBytes of
// tracked package bytes.
func New(maxPackages int, maxSizeBytes int64) *Cache {
	return &Cache{
		entries: slotcache.New[string, *Metrics](maxPackages),
		sizes:   make(map[string]int64),
		maxSize: maxSizeBytes,
		now:     time.Now,
	}
}

// RecordAccess notes an access to key, creating metrics on first sight and
// refreshing recency and size otherwise. Evictions keep the size ledger in
// step with the entry set.
func (c *Cache) RecordAccess(key string, sizeBytes int64) {
	now := c.now()

	if m, ok := c.entries.Get(key); ok {
		m.AccessCount++
		m.LastAccess = now
		c.currentSize += sizeBytes - c.sizes[key]
		c.sizes[key] = sizeBytes
	} else {
		metrics := &Metrics{
			PackageKey:  key,
			LastAccess:  now,
			AccessCount: 1,
		}
		if evictedKey, _, evicted := c.entries.Put(key, metrics); evicted {
			c.currentSize -= c.sizes[evictedKey]
			delete(c.sizes, evictedKey)
		}
		c.sizes[key] = sizeBytes
		c.currentSize += sizeBytes
	}

	c.evictToBudget()
}

// Seed installs historical metrics for key, replacing any tracked state.
// Unlike RecordAccess it does not count as a new access, so persisted
// history can be loaded without inflating counters.
func (c *Cache) Seed(m *Metrics, sizeBytes int64) {
	if m == nil {
		return
	}
	if _, ok := c.entries.Get(m.PackageKey); ok {
		c.currentSize += sizeBytes - c.sizes[m.PackageKey]
	} else {
		c.currentSize += sizeBytes
	}
	if evictedKey, _, evicted := c.entries.Put(m.PackageKey, m); evicted {
		c.currentSize -= c.sizes[evictedKey]
		delete(c.sizes, evictedKey)
	}
	c.sizes[m.PackageKey] = sizeBytes
	c.evictToBudget()
}

// evictToBudget drops LRU entries until the tracked total fits the byte
// budget or nothing is left.
func (c *Cache) evictToBudget() {
	for c.currentSize > c.maxSize && c.entries.Len() > 0 {
		tail := c.entries.TailEntries(1)
		if len(tail) == 0 {
			return
		}
		key := tail[0].Key
		c.entries.Remove(key)
		c.currentSize -= c.sizes[key]
		delete(c.sizes, key)
	}
}

// RecordScriptExecution notes a lifecycle script run for key. Unknown keys
// are ignored; script events without a preceding access carry no signal.
func (c *Cache) RecordScriptExecution(key string) {
	m, ok := c.entries.Get(key)
	if !ok {
		return
	}
	now := c.now()
	m.ScriptExecutionCount++
	m.LastScriptExecution = &now
}

// RecordBuild notes a successful build involving key.
func (c *Cache) RecordBuild(key string) {
	m, ok := c.entries.Get(key)
	if !ok {
		return
	}
	now := c.now()
	m.LastSuccessfulBuild = &now
}

// Metrics returns the tracked metrics for key without touching recency.
func (c *Cache) Metrics(key string) (*Metrics, bool) {
	return c.entries.Peek(key)
}

// ShouldKeepLRU reports whether key was accessed recently enough to survive.
// The base threshold tightens to a third under size pressure above 90% of
// the byte budget, and to a half for packages larger than twice the mean
// tracked size.
func (c *Cache) ShouldKeepLRU(key string, daysThreshold int) bool {
	m, ok := c.Metrics(key)
	if !ok {
		return false
	}

	days := c.now().Sub(m.LastAccess).Hours() / 24
	if days < float64(daysThreshold) {
		return true
	}

	if c.maxSize > 0 && float64(c.currentSize)/float64(c.maxSize) > 0.9 {
		return days < float64(daysThreshold)/3
	}

	if size, ok := c.sizes[key]; ok && len(c.sizes) > 0 {
		mean := float64(c.currentSize) / float64(len(c.sizes))
		if float64(size) > 2*mean {
			return days < float64(daysThreshold)/2
		}
	}

	return false
}

// IsSizeLimited reports whether the tracked total has reached the byte budget.
func (c *Cache) IsSizeLimited() bool {
	return c.currentSize >= c.maxSize
}

// PackageSize returns the tracked size for key.
func (c *Cache) PackageSize(key string) (int64, bool) {
	size, ok := c.sizes[key]
	return size, ok
}

// CurrentSize returns the total tracked bytes.
func (c *Cache) CurrentSize() int64 { return c.currentSize }

// Len returns the number of tracked packages.
func (c *Cache) Len() int { return c.entries.Len() }

// LRUKeys returns up to count keys from the least-recently-used end.
func (c *Cache) LRUKeys(count int) []string {
	tail := c.entries.TailEntries(count)
	keys := make([]string, 0, len(tail))
	for _, e := range tail {
		keys = append(keys, e.Key)
	}
	return keys
}

// Entries returns all tracked metrics in MRU-to-LRU order.
func (c *Cache) Entries() []*Metrics {
	snapshot := c.entries.Entries()
	out := make([]*Metrics, 0, len(snapshot))
	for _, e := range snapshot {
		out = append(out, e.Value)
	}
	return out
}
