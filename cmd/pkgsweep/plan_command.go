package main

import (
	"github.com/spf13/cobra"

	"pkgsweep/internal/planner"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var preserveDays int

	cmd := &cobra.Command{
		Use:   "plan [paths...]",
		Short: "Produce a cleanup plan without touching the filesystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			scan, err := ctx.scan(cmd.Context(), args)
			if err != nil {
				return err
			}
			opts, err := ctx.plannerOptions(preserveDays)
			if err != nil {
				return err
			}
			report := planner.New(opts, ctx.logger()).PlanBasic(scan)
			return writeJSON(cmd, report)
		},
	}

	cmd.Flags().IntVar(&preserveDays, "preserve-days", 0, "Keep packages modified within this many days (default from config)")
	return cmd
}
