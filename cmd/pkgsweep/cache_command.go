package main

import (
	"github.com/spf13/cobra"

	"pkgsweep/internal/scancache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Scan cache utilities",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))

	return cacheCmd
}

func (c *commandContext) scanCache() (*scancache.Cache, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return scancache.Load(cfg.Paths.ScanCachePath, c.logger()), nil
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show scan cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.scanCache()
			if err != nil {
				return err
			}
			return writeJSON(cmd, cache.Stats())
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard all cached directory sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.scanCache()
			if err != nil {
				return err
			}
			removed := cache.Len()
			cache.Clear()
			if err := cache.Save(); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"status":          "ok",
				"cleared_entries": removed,
			})
		},
	}
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop cache entries whose directories no longer exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.scanCache()
			if err != nil {
				return err
			}
			removed := cache.PruneMissing()
			if err := cache.Save(); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"status":         "ok",
				"pruned_entries": removed,
			})
		},
	}
}
