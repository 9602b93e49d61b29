package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for persisted state.
type Paths struct {
	DataDir       string `toml:"data_dir" json:"data_dir"`
	QuarantineDir string `toml:"quarantine_dir" json:"quarantine_dir"`
	ScanCachePath string `toml:"scan_cache_path" json:"scan_cache_path"`
	UsageDBPath   string `toml:"usage_db_path" json:"usage_db_path"`
	DedupStoreDir string `toml:"dedup_store_dir" json:"dedup_store_dir"`
}

// Cache contains the usage-cache budget configuration.
type Cache struct {
	MaxPackages int   `toml:"max_packages" json:"max_packages"`
	MaxSizeGiB  int64 `toml:"max_size_gib" json:"max_size_gib"`
}

// Optimize contains planning thresholds and feature toggles.
type Optimize struct {
	PreserveDays    int  `toml:"preserve_days" json:"preserve_days"`
	EnablePredictor bool `toml:"enable_predictor" json:"enable_predictor"`
	EnableDedup     bool `toml:"enable_dedup" json:"enable_dedup"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" json:"format"`
	Level  string `toml:"level" json:"level"`
}

// Config encapsulates all configuration values for pkgsweep.
//
// Configuration sections by subsystem:
//   - Paths: persisted-state locations under the data directory
//   - Cache: usage-cache entry and byte budgets
//   - Optimize: preservation window and optional strategies
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths" json:"paths"`
	Cache    Cache    `toml:"cache" json:"cache"`
	Optimize Optimize `toml:"optimize" json:"optimize"`
	Logging  Logging  `toml:"logging" json:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/pkgsweep/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pkgsweep.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// normalize expands every configured path and fills in locations derived
// from the data directory when left empty.
func (c *Config) normalize() error {
	dataDir, err := expandPath(c.Paths.DataDir)
	if err != nil {
		return err
	}
	c.Paths.DataDir = dataDir

	if strings.TrimSpace(c.Paths.QuarantineDir) == "" {
		c.Paths.QuarantineDir = filepath.Join(dataDir, "quarantine")
	}
	if strings.TrimSpace(c.Paths.ScanCachePath) == "" {
		c.Paths.ScanCachePath = filepath.Join(dataDir, "scan_cache.json")
	}
	if strings.TrimSpace(c.Paths.UsageDBPath) == "" {
		c.Paths.UsageDBPath = filepath.Join(dataDir, "usage.db")
	}
	if strings.TrimSpace(c.Paths.DedupStoreDir) == "" {
		c.Paths.DedupStoreDir = filepath.Join(dataDir, "store")
	}

	for _, field := range []*string{
		&c.Paths.QuarantineDir,
		&c.Paths.ScanCachePath,
		&c.Paths.UsageDBPath,
		&c.Paths.DedupStoreDir,
	} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// EnsureDirectories creates the directories required for an invocation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.QuarantineDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MaxSizeBytes returns the usage-cache byte budget.
func (c *Config) MaxSizeBytes() int64 {
	return c.Cache.MaxSizeGiB * 1024 * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
