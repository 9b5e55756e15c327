package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/jobs/monitor"
	"github.com/ternarybob/pipewatch/internal/jobs/transport"
	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/render"
	"github.com/ternarybob/pipewatch/internal/services/pipeline"
)

var (
	runFile   string
	runItems  []string
	runStages []string
	runVars   []string
	runQuiet  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a job and follow it to completion",
	Long: `Start a job on the pipeline server and follow it until it finishes.

The request comes from a pipeline file (-f) or from --item and --stage flags.
Pipeline files may reference {input-dir} style variables, set with --var or
PIPEWATCH_VAR_* environment variables.

Examples:
  pipewatch run -f pipeline.yaml
  pipewatch run --item a.png --item b.png --stage resize --stage blur
  pipewatch run -f pipeline.toml --var input-dir=/data/in`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Pipeline file (.yaml, .yml or .toml)")
	runCmd.Flags().StringArrayVar(&runItems, "item", nil, "Item (image) to process (repeatable)")
	runCmd.Flags().StringArrayVar(&runStages, "stage", nil, "Stage (filter) name, in order (repeatable)")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Pipeline variable as key=value (repeatable)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print the final table")
}

func runRun(cmd *cobra.Command, args []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newClient()

	if filters, err := client.ListFilters(ctx); err != nil {
		logger.Warn().Err(err).Msg("Could not load filters, skipping stage check")
	} else if err := pipeline.ValidateStages(filters, req.Stages); err != nil {
		return err
	}

	opts := []monitor.Option{monitor.WithTransportConfig(transport.ConfigFrom(config))}
	archive, err := openArchive()
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	if archive != nil {
		defer archive.Close()
		opts = append(opts, monitor.WithArchive(archive))
	}

	controller := monitor.NewController(client, newDialer(), logger, opts...)
	run, err := controller.Start(ctx, *req)
	if err != nil {
		return err
	}
	defer run.Stop()

	out := cmd.OutOrStdout()
	follow(out, run, req)

	result, _ := run.Completion().Result()
	fmt.Fprintln(out, render.StatusTable(req.Items, req.StageNames(), run.Display()))

	switch {
	case errors.Is(result.Err, monitor.ErrRunStopped):
		return fmt.Errorf("run %s stopped before job %s finished", run.ID(), run.JobID())
	case result.Err != nil:
		return result.Err
	}
	for _, o := range result.Outputs {
		fmt.Fprintf(out, "%s\t%s\n", o.Name, o.URL)
	}
	return nil
}

// follow prints log growth and the table whenever item state changes, until
// the run's completion resolves. Quiet mode prints nothing.
func follow(out io.Writer, run *monitor.Run, req *models.RunRequest) {
	logs := render.NewLogWriter(out)
	var shown map[string]models.DisplayState
	for {
		select {
		case <-run.Changed():
			if runQuiet {
				continue
			}
			if err := logs.Update(run.LogText()); err != nil {
				logger.Warn().Err(err).Msg("Failed to write log")
			}
			if display := run.Display(); !maps.Equal(display, shown) {
				fmt.Fprintln(out, render.StatusTable(req.Items, req.StageNames(), display))
				shown = display
			}
			logger.Debug().
				Str("job_id", run.JobID()).
				Str("status", string(run.Status())).
				Msg("Run state changed")
		case <-run.Completion().Done():
			if !runQuiet {
				_ = logs.Update(run.LogText())
			}
			return
		}
	}
}

func buildRequest() (*models.RunRequest, error) {
	vars := common.EnvVars()
	flagVars, err := common.ParseVarFlags(runVars)
	if err != nil {
		return nil, err
	}
	for k, v := range flagVars {
		vars[k] = v
	}

	if runFile != "" {
		req, err := common.LoadPipelineFile(runFile, vars, logger)
		if err != nil {
			return nil, err
		}
		// Flags extend the file
		req.Items = append(req.Items, runItems...)
		for _, name := range runStages {
			req.Stages = append(req.Stages, models.StageSpec{Name: name})
		}
		return req, nil
	}

	if len(runItems) == 0 || len(runStages) == 0 {
		return nil, fmt.Errorf("either --file or at least one --item and --stage are required")
	}
	req := &models.RunRequest{Items: runItems}
	for _, name := range runStages {
		req.Stages = append(req.Stages, models.StageSpec{Name: name})
	}
	common.ExpandPipelineVars(req, vars, logger)
	return req, nil
}
