// Package types provides RunLogger for correlation-based run logging.
//
// Every log line a run emits carries the server's job ID as its correlation ID,
// so one grep (or one arbor query) pulls the whole lifecycle of a job: start,
// transport switches, the terminal transition and the completion side effects.
//
// RunLogger provides helpers for the lifecycle events:
//   - LogRunStart(items, stages)
//   - LogItemProgress(done, total)
//   - LogRunComplete(status, duration, outputs)
//   - LogRunError(err, context)
//   - LogRunStopped(reason)
//
// PREFER these helpers over raw Arbor methods for lifecycle events.
package types

import (
	"time"

	"github.com/ternarybob/arbor"
)

// RunLogger wraps arbor.ILogger with the job's correlation context
type RunLogger struct {
	logger arbor.ILogger
	runID  string
	jobID  string
}

// NewRunLogger creates a RunLogger. jobID is the correlation ID; runID is the
// local identifier of this observation of the job.
func NewRunLogger(baseLogger arbor.ILogger, runID string, jobID string) *RunLogger {
	return &RunLogger{
		logger: baseLogger.WithCorrelationId(jobID),
		runID:  runID,
		jobID:  jobID,
	}
}

// Info returns an ILogEvent for info level logging.
func (rl *RunLogger) Info() arbor.ILogEvent {
	return rl.logger.Info()
}

// Warn returns an ILogEvent for warn level logging.
func (rl *RunLogger) Warn() arbor.ILogEvent {
	return rl.logger.Warn()
}

// Error returns an ILogEvent for error level logging.
func (rl *RunLogger) Error() arbor.ILogEvent {
	return rl.logger.Error()
}

// Debug returns an ILogEvent for debug level logging.
func (rl *RunLogger) Debug() arbor.ILogEvent {
	return rl.logger.Debug()
}

// Logger returns the correlated logger, for components that take arbor.ILogger
func (rl *RunLogger) Logger() arbor.ILogger {
	return rl.logger
}

// LogRunStart logs that the server accepted the run
func (rl *RunLogger) LogRunStart(items []string, stages []string) {
	rl.Info().
		Str("run_id", rl.runID).
		Str("job_id", rl.jobID).
		Int("items", len(items)).
		Strs("stages", stages).
		Msg("Run started")
}

// LogItemProgress logs how many items reached a terminal state
func (rl *RunLogger) LogItemProgress(finished int, total int) {
	progressPct := 0.0
	if total > 0 {
		progressPct = float64(finished) / float64(total) * 100
	}

	rl.Debug().
		Str("job_id", rl.jobID).
		Int("finished", finished).
		Int("total", total).
		Float64("progress_pct", progressPct).
		Msg("Item progress")
}

// LogRunComplete logs the terminal transition
func (rl *RunLogger) LogRunComplete(status string, duration time.Duration, outputCount int) {
	rl.Info().
		Str("run_id", rl.runID).
		Str("job_id", rl.jobID).
		Str("status", status).
		Float64("duration_sec", duration.Seconds()).
		Int("output_count", outputCount).
		Msg("Run finished")
}

// LogRunError logs a failure with the step it happened in
func (rl *RunLogger) LogRunError(err error, context string) {
	rl.Error().
		Str("run_id", rl.runID).
		Str("job_id", rl.jobID).
		Str("error", err.Error()).
		Str("context", context).
		Msg("Run failed")
}

// LogRunStopped logs that the observer stopped watching before the job finished
func (rl *RunLogger) LogRunStopped(reason string) {
	rl.Warn().
		Str("run_id", rl.runID).
		Str("job_id", rl.jobID).
		Str("reason", reason).
		Msg("Run stopped")
}
