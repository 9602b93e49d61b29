package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"pkgsweep/internal/quarantine"
	"pkgsweep/internal/scancache"
	"pkgsweep/internal/usagestore"
)

type statsOutput struct {
	Quarantine quarantine.Stats `json:"quarantine"`
	ScanCache  scancache.Stats  `json:"scan_cache"`
	Usage      usagestore.Stats `json:"usage"`
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show quarantine, scan cache, and usage database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ledger, err := ctx.ledger()
			if err != nil {
				return err
			}

			out := statsOutput{
				Quarantine: ledger.Stats(),
				ScanCache:  scancache.Load(cfg.Paths.ScanCachePath, ctx.logger()).Stats(),
			}
			if err := ctx.withUsageStore(func(store *usagestore.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out.Usage = stats
				return nil
			}); err != nil {
				return err
			}

			if !pretty {
				return writeJSON(cmd, out)
			}
			renderStats(cmd, out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&pretty, "pretty", false, "Render tables instead of JSON")
	return cmd
}

func renderStats(cmd *cobra.Command, out statsOutput) {
	printer := message.NewPrinter(language.English)
	count := func(v int) string { return printer.Sprintf("%d", v) }

	rows := [][]string{
		{"Quarantine entries", count(out.Quarantine.TotalEntries)},
		{"Quarantine size", humanBytes(out.Quarantine.TotalSizeBytes)},
		{"Oldest entry (days)", strconv.Itoa(out.Quarantine.OldestEntryDays)},
		{"Entries over retention", count(out.Quarantine.EntriesOverRetention)},
		{"Disk free", humanBytes(out.Quarantine.DiskFreeBytes)},
		{"Cached directory sizes", count(out.ScanCache.TotalEntries)},
		{"Cached bytes tracked", humanBytes(out.ScanCache.TotalCachedSize)},
		{"Cache hits / misses", fmt.Sprintf("%s / %s", count(out.ScanCache.Hits), count(out.ScanCache.Misses))},
		{"Tracked packages", count(out.Usage.PackageCount)},
		{"Tracked projects", count(out.Usage.ProjectCount)},
		{"Tracked package bytes", humanBytes(out.Usage.TotalBytes)},
	}
	if out.ScanCache.LastSaved != nil {
		rows = append(rows, []string{"Scan cache saved", out.ScanCache.LastSaved.Format("2006-01-02 15:04:05")})
	}

	stdout := cmd.OutOrStdout()
	title := "pkgsweep statistics"
	if shouldColorize(stdout) {
		title = ansiBold + title + ansiReset
	}
	fmt.Fprintln(stdout, title)
	fmt.Fprintln(stdout, renderTable([]string{"Metric", "Value"}, rows, 1))
}
