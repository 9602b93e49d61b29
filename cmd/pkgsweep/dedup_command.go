package main

import (
	"github.com/spf13/cobra"

	"pkgsweep/internal/dedup"
	"pkgsweep/internal/planner"
)

func newDedupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dedup [paths...]",
		Short: "Replace duplicate package copies with symlinks to a shared store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			scan, err := ctx.scan(cmd.Context(), args)
			if err != nil {
				return err
			}

			store, err := dedup.NewStore(cfg.Paths.DedupStoreDir, ctx.logger())
			if err != nil {
				return err
			}
			opts, err := ctx.plannerOptions(0)
			if err != nil {
				return err
			}
			count := planner.New(opts, ctx.logger()).ExecuteDedup(scan, store)

			return writeJSON(cmd, map[string]any{
				"status":             "ok",
				"deduplicated_count": count,
			})
		},
	}
}
