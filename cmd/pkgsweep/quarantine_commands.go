package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkgsweep/internal/quarantine"
)

func newQuarantineCommand(ctx *commandContext) *cobra.Command {
	var skipHash bool

	cmd := &cobra.Command{
		Use:   "quarantine <path>...",
		Short: "Move directories into the quarantine area",
		Long: `Quarantine moves each target directory into the quarantine area and
records it in the ledger so the move can be rolled back later. Targets
that fail to move are reported on stderr; the remaining targets are
still processed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := ctx.ledger()
			if err != nil {
				return err
			}

			records := make([]quarantine.Record, 0, len(args))
			failed := 0
			for _, target := range args {
				var rec quarantine.Record
				if skipHash {
					rec, err = ledger.MoveToQuarantineFast(target)
				} else {
					rec, err = ledger.MoveToQuarantine(target)
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "quarantine %s: %v\n", target, err)
					continue
				}
				records = append(records, rec)
			}

			if err := writeJSON(cmd, records); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d targets failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipHash, "skip-hash", false, "Skip content hashing for faster moves")
	return cmd
}

func newRollbackCommand(ctx *commandContext) *cobra.Command {
	var (
		id     string
		latest bool
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore a quarantined directory to its original location",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" && !latest {
				return fmt.Errorf("either --id or --latest is required")
			}

			ledger, err := ctx.ledger()
			if err != nil {
				return err
			}

			var rec quarantine.Record
			if latest {
				rec, err = ledger.Latest()
			} else {
				rec, err = ledger.FindByID(id)
			}
			if err != nil {
				return err
			}

			if err := ledger.Rollback(rec); err != nil {
				return err
			}
			return writeJSON(cmd, rec)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Quarantine entry ID to restore")
	cmd.Flags().BoolVar(&latest, "latest", false, "Restore the most recent quarantine entry")
	cmd.MarkFlagsMutuallyExclusive("id", "latest")
	return cmd
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Permanently delete quarantine entries past the retention limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := ctx.ledger()
			if err != nil {
				return err
			}
			result, err := ledger.Cleanup()
			if err != nil {
				return err
			}
			return writeJSON(cmd, result)
		},
	}
}
