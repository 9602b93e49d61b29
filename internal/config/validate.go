package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateOptimize(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCache() error {
	if c.Cache.MaxPackages <= 0 {
		return fmt.Errorf("cache.max_packages must be positive, got %d", c.Cache.MaxPackages)
	}
	if c.Cache.MaxSizeGiB <= 0 {
		return fmt.Errorf("cache.max_size_gib must be positive, got %d", c.Cache.MaxSizeGiB)
	}
	return nil
}

func (c *Config) validateOptimize() error {
	if c.Optimize.PreserveDays < 0 {
		return fmt.Errorf("optimize.preserve_days must not be negative, got %d", c.Optimize.PreserveDays)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
