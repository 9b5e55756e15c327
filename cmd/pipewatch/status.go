package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/pipewatch/internal/jobs/tracking"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/render"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's current status once",
	Long: `Fetch a job's status a single time and print the item table and log.

Without history a finished item has no known stage or worker, so done items
show as done in every stage with no worker.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := newClient()

	snap, err := client.GetJobStatus(ctx, args[0])
	if err != nil {
		return err
	}

	history := tracking.NewHistory()
	now := time.Now()
	for _, id := range snap.ItemNames() {
		history.Record(id, snap.Items[id], now)
	}
	display := tracking.DeriveAll(snap.Items, history)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job: %s\nStatus: %s\n", snap.JobID, snap.Status)
	if table := render.StatusTable(snap.ItemNames(), models.DistinctStageNames(snap.Steps), display); table != "" {
		fmt.Fprintln(out, table)
	}
	for _, entry := range snap.Logs {
		fmt.Fprintln(out, entry.Format())
	}
	if snap.Error != "" {
		fmt.Fprintf(out, "Job error: %s\n", snap.Error)
	}

	if snap.Status == models.JobStatusDone {
		outputs, err := client.GetJobOutputs(ctx, snap.JobID)
		if err != nil {
			return fmt.Errorf("fetch outputs: %w", err)
		}
		for _, o := range outputs {
			fmt.Fprintf(out, "%s\t%s\n", o.Name, o.URL)
		}
	}
	return nil
}
