package quarantine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"pkgsweep/internal/fileutil"
	"pkgsweep/internal/logging"
)

const (
	indexFile  = "index.json"
	configFile = "config.json"
)

// Ledger manages a quarantine directory and its persisted index. A single
// process owns the index for the duration of an invocation; concurrent
// invocations against the same directory are not coordinated.
type Ledger struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a ledger rooted at dir. The directory is created lazily
// on the first move.
func NewLedger(dir string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ledger{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "quarantine"),
		now:    time.Now,
	}
}

// Dir returns the quarantine root directory.
func (l *Ledger) Dir() string { return l.dir }

func (l *Ledger) indexPath() string  { return filepath.Join(l.dir, indexFile) }
func (l *Ledger) configPath() string { return filepath.Join(l.dir, configFile) }

// readIndex loads the persisted record list. A missing or corrupt index
// yields an empty list rather than an error.
func (l *Ledger) readIndex() []Record {
	data, err := os.ReadFile(l.indexPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("failed to read quarantine index",
				logging.String(logging.FieldEventType, "index_read_failed"),
				logging.Error(err),
				logging.String(logging.FieldImpact, "index treated as empty"))
		}
		return nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		l.logger.Warn("failed to parse quarantine index",
			logging.String(logging.FieldEventType, "index_parse_failed"),
			logging.Error(err),
			logging.String(logging.FieldImpact, "index treated as empty"))
		return nil
	}
	return records
}

// writeIndex persists the record list atomically via a temp file rename.
func (l *Ledger) writeIndex(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quarantine index: %w", err)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create quarantine directory: %w", err)
	}

	tmpPath := l.indexPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmpPath, l.indexPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

// LoadConfig reads the retention config, falling back to defaults when the
// file is missing or unreadable.
func (l *Ledger) LoadConfig() Config {
	data, err := os.ReadFile(l.configPath())
	if err != nil {
		return DefaultConfig()
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig()
	}
	return cfg
}

// SaveConfig persists the retention config.
func (l *Ledger) SaveConfig(cfg Config) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create quarantine directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quarantine config: %w", err)
	}
	if err := os.WriteFile(l.configPath(), data, 0o644); err != nil {
		return fmt.Errorf("write quarantine config: %w", err)
	}
	return nil
}

// MoveToQuarantine moves target into the quarantine area and appends an
// index record. The content hash is computed only after the move succeeds;
// a hash failure stores HashUnknown instead of failing the move.
func (l *Ledger) MoveToQuarantine(target string) (Record, error) {
	return l.move(target, true)
}

// MoveToQuarantineFast is MoveToQuarantine with hashing skipped; the record
// stores HashDeferred.
func (l *Ledger) MoveToQuarantineFast(target string) (Record, error) {
	return l.move(target, false)
}

func (l *Ledger) move(target string, withHash bool) (Record, error) {
	cfg := l.LoadConfig()
	if cfg.MaxEntries > 0 && len(l.readIndex()) >= cfg.MaxEntries {
		if _, err := l.Cleanup(); err != nil {
			return Record{}, fmt.Errorf("pre-move cleanup: %w", err)
		}
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return Record{}, fmt.Errorf("create quarantine directory: %w", err)
	}

	id := strconv.FormatInt(l.now().UnixNano(), 10)
	qpath := filepath.Join(l.dir, id+"_"+filepath.Base(target))

	// Size estimate before the move so quota accounting survives a later
	// hash failure.
	size := fileutil.DirSize(target)

	if err := l.relocate(target, qpath); err != nil {
		return Record{}, err
	}

	checksum := HashDeferred
	if withHash {
		hash, err := hashDir(qpath)
		if err != nil {
			l.logger.Warn("hash computation failed",
				logging.String(logging.FieldEventType, "hash_failed"),
				logging.String("path", qpath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "record stored without integrity hash"))
			checksum = HashUnknown
		} else {
			checksum = hash
		}
	}

	rec := Record{
		ID:             id,
		OriginalPath:   target,
		QuarantinePath: qpath,
		SHA256:         checksum,
		SizeBytes:      size,
		CreatedAt:      l.now(),
	}

	records := append(l.readIndex(), rec)
	if err := l.writeIndex(records); err != nil {
		return Record{}, err
	}

	l.logger.Info("quarantined directory",
		logging.String(logging.FieldEventType, "quarantined"),
		logging.String("id", rec.ID),
		logging.String("original_path", rec.OriginalPath),
		logging.Int64("size_bytes", rec.SizeBytes))

	return rec, nil
}

// relocate moves target to qpath, preferring an atomic rename and falling
// back to copy-then-delete across devices. The fallback never finishes with
// both copies present: a copy failure removes the partial destination, and
// a failure to remove the original also removes the finished copy.
func (l *Ledger) relocate(target, qpath string) error {
	renameErr := os.Rename(target, qpath)
	if renameErr == nil {
		return nil
	}

	if err := fileutil.CopyDir(target, qpath); err != nil {
		os.RemoveAll(qpath)
		return fmt.Errorf("move %s to quarantine (rename: %v, copy: %w)", target, renameErr, err)
	}
	if err := os.RemoveAll(target); err != nil {
		os.RemoveAll(qpath)
		return fmt.Errorf("remove original %s after copy: %w", target, err)
	}
	return nil
}

// Cleanup removes records that violate retention: entries older than the
// retention window, oldest entries beyond the max count, and oldest entries
// until total size fits the byte quota. A failed deletion is skipped and
// the record kept in the index so a later run can retry it.
func (l *Ledger) Cleanup() (CleanupResult, error) {
	cfg := l.LoadConfig()
	records := l.readIndex()
	now := l.now()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	selected := make(map[string]bool)

	if cfg.RetentionDays > 0 {
		for _, rec := range records {
			if int(now.Sub(rec.CreatedAt).Hours()/24) > cfg.RetentionDays {
				selected[rec.ID] = true
			}
		}
	}

	if cfg.MaxEntries > 0 && len(records) > cfg.MaxEntries {
		for _, rec := range records[:len(records)-cfg.MaxEntries] {
			selected[rec.ID] = true
		}
	}

	if maxBytes := cfg.MaxSizeBytes(); maxBytes > 0 {
		var total int64
		for _, rec := range records {
			total += rec.SizeBytes
		}
		for _, rec := range records {
			if total <= maxBytes {
				break
			}
			if !selected[rec.ID] {
				selected[rec.ID] = true
				total -= rec.SizeBytes
			}
		}
	}

	var result CleanupResult
	removed := make(map[string]bool)
	for _, rec := range records {
		if !selected[rec.ID] {
			continue
		}
		if fileutil.PathExists(rec.QuarantinePath) {
			if err := os.RemoveAll(rec.QuarantinePath); err != nil {
				l.logger.Warn("failed to purge quarantine entry",
					logging.String(logging.FieldEventType, "purge_failed"),
					logging.String("id", rec.ID),
					logging.String("path", rec.QuarantinePath),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "entry kept in index for a later retry"))
				continue
			}
		}
		removed[rec.ID] = true
		result.EntriesRemoved++
		result.BytesFreed += rec.SizeBytes
	}

	kept := records[:0]
	for _, rec := range records {
		if !removed[rec.ID] {
			kept = append(kept, rec)
		}
	}
	if err := l.writeIndex(kept); err != nil {
		return result, err
	}

	if result.EntriesRemoved > 0 {
		l.logger.Info("quarantine cleanup complete",
			logging.String(logging.FieldEventType, "cleanup_complete"),
			logging.Int("entries_removed", result.EntriesRemoved),
			logging.Int64("bytes_freed", result.BytesFreed))
	}

	return result, nil
}

// Rollback moves a quarantined directory back to its original path and
// removes its record. It fails without touching anything if the original
// path has been recreated in the meantime.
func (l *Ledger) Rollback(rec Record) error {
	if fileutil.PathExists(rec.OriginalPath) {
		return fmt.Errorf("rollback target %s already exists", rec.OriginalPath)
	}
	if parent := filepath.Dir(rec.OriginalPath); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("recreate parent directory: %w", err)
		}
	}

	if err := os.Rename(rec.QuarantinePath, rec.OriginalPath); err != nil {
		return fmt.Errorf("rollback %s to %s: %w", rec.QuarantinePath, rec.OriginalPath, err)
	}

	records := l.readIndex()
	kept := records[:0]
	for _, r := range records {
		if r.ID != rec.ID {
			kept = append(kept, r)
		}
	}
	if err := l.writeIndex(kept); err != nil {
		return err
	}

	l.logger.Info("rolled back quarantine entry",
		logging.String(logging.FieldEventType, "rolled_back"),
		logging.String("id", rec.ID),
		logging.String("restored_path", rec.OriginalPath))

	return nil
}

// List returns all index records.
func (l *Ledger) List() []Record {
	return l.readIndex()
}

// FindByID returns the record with the given id, or ErrRecordNotFound.
func (l *Ledger) FindByID(id string) (Record, error) {
	for _, rec := range l.readIndex() {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("id %s: %w", id, ErrRecordNotFound)
}

// Latest returns the most recently created record, or ErrRecordNotFound
// when the index is empty.
func (l *Ledger) Latest() (Record, error) {
	records := l.readIndex()
	if len(records) == 0 {
		return Record{}, ErrRecordNotFound
	}
	latest := records[0]
	for _, rec := range records[1:] {
		if rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	return latest, nil
}

// Stats summarizes the index plus free space on the quarantine filesystem.
func (l *Ledger) Stats() Stats {
	records := l.readIndex()
	cfg := l.LoadConfig()
	now := l.now()

	var stats Stats
	stats.TotalEntries = len(records)
	for _, rec := range records {
		stats.TotalSizeBytes += rec.SizeBytes
		days := int(now.Sub(rec.CreatedAt).Hours() / 24)
		if days > stats.OldestEntryDays {
			stats.OldestEntryDays = days
		}
		if cfg.RetentionDays > 0 && days > cfg.RetentionDays {
			stats.EntriesOverRetention++
		}
	}

	var fsStat unix.Statfs_t
	if err := unix.Statfs(l.dir, &fsStat); err == nil {
		stats.DiskFreeBytes = int64(fsStat.Bavail) * fsStat.Bsize
	}

	return stats
}
