package main

import (
	"github.com/spf13/cobra"

	"pkgsweep/internal/planner"
	"pkgsweep/internal/predictor"
	"pkgsweep/internal/scanner"
	"pkgsweep/internal/usagestore"
)

func newOptimizeCommand(ctx *commandContext) *cobra.Command {
	var preserveDays int

	cmd := &cobra.Command{
		Use:   "optimize [paths...]",
		Short: "Produce a cleanup plan using usage heuristics and the predictor",
		Long: `Optimize scans the given roots, records package accesses in the usage
database, and builds a removal plan combining orphan detection, the
recency heuristics, and (when enabled) the usage predictor. The plan is
printed as JSON; nothing is moved. Pass selected target paths to the
quarantine command to act on the plan.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scan, err := ctx.scan(cmd.Context(), args)
			if err != nil {
				return err
			}
			opts, err := ctx.plannerOptions(preserveDays)
			if err != nil {
				return err
			}

			pl := planner.New(opts, ctx.logger())
			if err := ctx.withUsageStore(func(store *usagestore.Store) error {
				if err := seedUsage(cmd, scan, store, pl); err != nil {
					return err
				}
				return recordScan(cmd, scan, store)
			}); err != nil {
				return err
			}

			report := pl.PlanOptimized(scan)
			return writeJSON(cmd, report)
		},
	}

	cmd.Flags().IntVar(&preserveDays, "preserve-days", 0, "Keep packages modified within this many days (default from config)")
	return cmd
}

// seedUsage loads persisted metrics for every scanned package so the plan
// sees usage history instead of a cold cache.
func seedUsage(cmd *cobra.Command, scan *scanner.Output, store *usagestore.Store, pl *planner.Planner) error {
	ctx := cmd.Context()
	for _, pkg := range scan.Packages {
		metrics, ok, err := store.Metrics(ctx, pkg.Key())
		if err != nil {
			return err
		}
		if ok {
			pl.Usage().Seed(metrics, pkg.SizeBytes)
		}
	}
	return nil
}

// recordScan persists scan observations so usage history accumulates
// across invocations.
func recordScan(cmd *cobra.Command, scan *scanner.Output, store *usagestore.Store) error {
	ctx := cmd.Context()
	for _, pkg := range scan.Packages {
		if err := store.RecordAccess(ctx, pkg.Key(), pkg.SizeBytes); err != nil {
			return err
		}
	}
	for _, proj := range scan.Projects {
		projectType := predictor.DetectProjectType(proj.Path)
		if err := store.UpsertProject(ctx, proj.Path, projectType, len(proj.Dependencies), proj.MTime); err != nil {
			return err
		}
	}
	return nil
}
