// Package usagestore persists package usage metrics across invocations in a
// SQLite database. The in-memory usage cache is rebuilt per run; this store
// is the durable record behind it.
package usagestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pkgsweep/internal/usagecache"
)

const schema = `
CREATE TABLE IF NOT EXISTS package_metrics (
    package_key TEXT PRIMARY KEY,
    last_access_time TEXT NOT NULL,
    last_script_execution TEXT,
    access_count INTEGER NOT NULL DEFAULT 0,
    script_execution_count INTEGER NOT NULL DEFAULT 0,
    last_successful_build TEXT,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS projects (
    path TEXT PRIMARY KEY,
    project_type TEXT,
    dependency_count INTEGER NOT NULL DEFAULT 0,
    last_modified TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_package_metrics_access
    ON package_metrics(last_access_time);
CREATE INDEX IF NOT EXISTS idx_projects_modified
    ON projects(last_modified);
`

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Stats summarizes stored rows.
type Stats struct {
	PackageCount int   `json:"package_count"`
	ProjectCount int   `json:"project_count"`
	TotalBytes   int64 `json:"total_bytes"`
}

// Open opens or creates the database at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordAccess upserts an access event for the package.
func (s *Store) RecordAccess(ctx context.Context, packageKey string, sizeBytes int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO package_metrics (package_key, last_access_time, access_count, size_bytes)
VALUES (?, ?, 1, ?)
ON CONFLICT(package_key) DO UPDATE SET
    last_access_time = excluded.last_access_time,
    access_count = access_count + 1,
    size_bytes = excluded.size_bytes,
    updated_at = excluded.last_access_time`,
		packageKey, now, sizeBytes)
	if err != nil {
		return fmt.Errorf("record access: %w", err)
	}
	return nil
}

// RecordScriptExecution notes a lifecycle script run for a known package.
func (s *Store) RecordScriptExecution(ctx context.Context, packageKey string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
UPDATE package_metrics SET
    last_script_execution = ?,
    script_execution_count = script_execution_count + 1,
    updated_at = ?
WHERE package_key = ?`,
		now, now, packageKey)
	if err != nil {
		return fmt.Errorf("record script execution: %w", err)
	}
	return nil
}

// RecordBuild notes a successful build for a known package.
func (s *Store) RecordBuild(ctx context.Context, packageKey string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
UPDATE package_metrics SET
    last_successful_build = ?,
    updated_at = ?
WHERE package_key = ?`,
		now, now, packageKey)
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return nil
}

// Metrics returns stored metrics for a package, or ok=false when absent.
func (s *Store) Metrics(ctx context.Context, packageKey string) (*usagecache.Metrics, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT package_key, last_access_time, last_script_execution,
       access_count, script_execution_count, last_successful_build
FROM package_metrics WHERE package_key = ?`, packageKey)

	var (
		m         usagecache.Metrics
		accessStr string
		scriptStr sql.NullString
		buildStr  sql.NullString
	)
	err := row.Scan(&m.PackageKey, &accessStr, &scriptStr, &m.AccessCount, &m.ScriptExecutionCount, &buildStr)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query metrics: %w", err)
	}

	m.LastAccess = parseTime(accessStr)
	if scriptStr.Valid {
		t := parseTime(scriptStr.String)
		m.LastScriptExecution = &t
	}
	if buildStr.Valid {
		t := parseTime(buildStr.String)
		m.LastSuccessfulBuild = &t
	}
	return &m, true, nil
}

// StalePackages returns keys not accessed within the last days.
func (s *Store) StalePackages(ctx context.Context, days int) ([]string, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx,
		"SELECT package_key FROM package_metrics WHERE last_access_time < ?", cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale packages: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// TopPackages returns the most accessed packages with their counts.
func (s *Store) TopPackages(ctx context.Context, limit int) (map[string]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT package_key, access_count FROM package_metrics
ORDER BY access_count DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top packages: %w", err)
	}
	defer rows.Close()

	top := make(map[string]uint64)
	for rows.Next() {
		var (
			key   string
			count uint64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		top[key] = count
	}
	return top, rows.Err()
}

// UpsertProject stores project metadata for the predictor.
func (s *Store) UpsertProject(ctx context.Context, path, projectType string, dependencyCount int, lastModified time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO projects (path, project_type, dependency_count, last_modified, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
    project_type = excluded.project_type,
    dependency_count = excluded.dependency_count,
    last_modified = excluded.last_modified,
    updated_at = excluded.updated_at`,
		path, projectType, dependencyCount, lastModified.UTC().Format(time.RFC3339Nano), now)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// Stats counts stored rows and bytes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM package_metrics")
	if err := row.Scan(&stats.PackageCount, &stats.TotalBytes); err != nil {
		return stats, fmt.Errorf("query package stats: %w", err)
	}
	row = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects")
	if err := row.Scan(&stats.ProjectCount); err != nil {
		return stats, fmt.Errorf("query project stats: %w", err)
	}
	return stats, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
