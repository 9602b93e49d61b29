package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"pkgsweep/internal/config"
	"pkgsweep/internal/logging"
	"pkgsweep/internal/planner"
	"pkgsweep/internal/quarantine"
	"pkgsweep/internal/scancache"
	"pkgsweep/internal/scanner"
	"pkgsweep/internal/usagestore"
)

// commandContext shares lazily constructed config and collaborators across
// subcommands.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	log        *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.log = logging.NewNop()
			return
		}
		logger, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
		if err != nil {
			c.log = logging.NewNop()
			return
		}
		c.log = logger
	})
	return c.log
}

// ledger returns the quarantine ledger rooted at the configured directory.
func (c *commandContext) ledger() (*quarantine.Ledger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return quarantine.NewLedger(cfg.Paths.QuarantineDir, c.logger()), nil
}

// scan runs a filesystem scan over roots with the persistent size memo, and
// saves the memo afterwards.
func (c *commandContext) scan(ctx context.Context, roots []string) (*scanner.Output, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	cache := scancache.Load(cfg.Paths.ScanCachePath, c.logger())
	out, err := scanner.New(cache, c.logger()).Scan(ctx, roots)
	if err != nil {
		return nil, err
	}
	if err := cache.Save(); err != nil {
		c.logger().Warn("failed to save scan cache",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next scan recomputes sizes"))
	}
	return out, nil
}

// plannerOptions maps config onto planner options.
func (c *commandContext) plannerOptions(preserveDays int) (planner.Options, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return planner.Options{}, err
	}
	if preserveDays <= 0 {
		preserveDays = cfg.Optimize.PreserveDays
	}
	return planner.Options{
		PreserveDays:    preserveDays,
		MaxPackages:     cfg.Cache.MaxPackages,
		MaxSizeBytes:    cfg.MaxSizeBytes(),
		EnablePredictor: cfg.Optimize.EnablePredictor,
		EnableDedup:     cfg.Optimize.EnableDedup,
	}, nil
}

// withUsageStore opens the durable usage database for the duration of fn.
func (c *commandContext) withUsageStore(fn func(*usagestore.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := usagestore.Open(cfg.Paths.UsageDBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
