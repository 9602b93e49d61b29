package main

import (
	"github.com/spf13/cobra"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Discover packages and projects under the given roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := ctx.scan(cmd.Context(), args)
			if err != nil {
				return err
			}
			return writeJSON(cmd, out)
		},
	}
}
