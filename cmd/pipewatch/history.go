package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/pipewatch/internal/render"
)

var (
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived runs",
	Long: `List runs saved to the local archive, newest first.

Requires [archive] enabled = true in the configuration.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to list (0 = all)")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show one run in detail")
}

func runHistory(cmd *cobra.Command, args []string) error {
	archive, err := openArchive()
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	if archive == nil {
		return fmt.Errorf("archive is disabled, set [archive] enabled = true")
	}
	defer archive.Close()

	out := cmd.OutOrStdout()
	if historyRun != "" {
		record, err := archive.GetRun(cmd.Context(), historyRun)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, render.RunDetail(record))
		return nil
	}

	records, err := archive.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No archived runs")
		return nil
	}
	fmt.Fprintln(out, render.RunsTable(records))
	return nil
}
