// Package quarantine provides a crash-safe holding area for removed package
// directories: targets are moved (never deleted) under a quarantine root, a
// persisted index records each move, and every move can be rolled back until
// retention cleanup purges it.
package quarantine

import "time"

// Record describes one quarantined directory.
type Record struct {
	ID             string    `json:"id"`
	OriginalPath   string    `json:"original_path"`
	QuarantinePath string    `json:"quarantine_path"`
	SHA256         string    `json:"sha256"`
	SizeBytes      int64     `json:"size_bytes"`
	CreatedAt      time.Time `json:"created_at"`
}

// Config bounds how much the quarantine area is allowed to hold. A zero
// value for any field disables that limit.
type Config struct {
	MaxSizeGB     int64 `json:"max_size_gb"`
	RetentionDays int   `json:"retention_days"`
	MaxEntries    int   `json:"max_entries"`
}

// DefaultConfig returns the retention limits used when no config file exists.
func DefaultConfig() Config {
	return Config{
		MaxSizeGB:     10,
		RetentionDays: 30,
		MaxEntries:    200,
	}
}

// MaxSizeBytes converts the GB quota to bytes (0 = unlimited).
func (c Config) MaxSizeBytes() int64 {
	return c.MaxSizeGB * 1024 * 1024 * 1024
}

// Stats summarizes the current quarantine contents.
type Stats struct {
	TotalEntries         int   `json:"total_entries"`
	TotalSizeBytes       int64 `json:"total_size_bytes"`
	OldestEntryDays      int   `json:"oldest_entry_days"`
	EntriesOverRetention int   `json:"entries_over_retention"`
	DiskFreeBytes        int64 `json:"disk_free_bytes"`
}

// CleanupResult reports what a retention pass removed.
type CleanupResult struct {
	EntriesRemoved int   `json:"entries_removed"`
	BytesFreed     int64 `json:"bytes_freed"`
}
