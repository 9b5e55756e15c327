package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/jobs/tracking"
	"github.com/ternarybob/pipewatch/internal/jobs/transport"
	"github.com/ternarybob/pipewatch/internal/jobs/types"
	"github.com/ternarybob/pipewatch/internal/models"
)

const archiveTimeout = 5 * time.Second

// Run is one observed execution of a job. It owns the job's history, log
// cursor and transport, and is discarded with them.
//
// Events are handled one at a time on the run's loop goroutine. Readers take
// the run lock; after Stop returns nothing mutates the run.
type Run struct {
	id        string
	jobID     string
	request   models.RunRequest
	client    interfaces.PipelineClient
	transport *transport.Manager
	sink      interfaces.LogSink
	archive   interfaces.RunArchive
	logger    *types.RunLogger
	now       func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	events   chan transport.Event
	loopDone <-chan struct{}
	stopped  atomic.Bool

	mu         sync.Mutex
	status     models.JobStatus
	items      map[string]models.ItemSnapshot
	history    *tracking.History
	logs       *tracking.LogCursor
	display    map[string]models.DisplayState
	lines      []string
	outputs    []models.Output
	finished   bool
	terminal   int
	startedAt  time.Time
	finishedAt time.Time

	changed    chan struct{}
	completion *Completion
}

// ID returns the local run ID
func (r *Run) ID() string { return r.id }

// JobID returns the server job ID
func (r *Run) JobID() string { return r.jobID }

// Request returns what the run was started with
func (r *Run) Request() models.RunRequest { return r.request }

// Completion resolves once, when the job finishes or the run stops
func (r *Run) Completion() *Completion { return r.completion }

// Changed receives a value after state changes. Notifications coalesce.
func (r *Run) Changed() <-chan struct{} { return r.changed }

// Display returns a copy of the current display state per item
func (r *Run) Display() map[string]models.DisplayState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.DisplayState, len(r.display))
	for id, ds := range r.display {
		out[id] = ds
	}
	return out
}

// Status returns the last job status observed
func (r *Run) Status() models.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// LogLines returns a copy of the rendered log lines
func (r *Run) LogLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// LogText returns the rendered log. It only ever grows.
func (r *Run) LogText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}

// Finished reports whether the terminal transition happened
func (r *Run) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Stop tears the run down immediately. Safe to call more than once.
func (r *Run) Stop() {
	r.halt("stopped by user")
	<-r.loopDone
}

func (r *Run) start() error {
	r.appendLine(fmt.Sprintf("Job: %s", r.jobID))
	r.logger.LogRunStart(r.request.Items, r.request.StageNames())

	if err := r.transport.Start(r.ctx, r.jobID, r.events); err != nil {
		r.cancel()
		return fmt.Errorf("start transport: %w", err)
	}
	r.loopDone = common.SafeGo(r.logger.Logger(), "run-"+r.jobID, r.loop)
	return nil
}

func (r *Run) loop() {
	defer r.cancel()
	for {
		select {
		case <-r.ctx.Done():
			r.halt("context cancelled")
			return
		case ev := <-r.events:
			if r.handle(ev) {
				return
			}
		}
	}
}

// handle processes one transport event and reports whether the run is over
func (r *Run) handle(ev transport.Event) bool {
	switch ev.Kind {
	case transport.EventLive:
		r.onLive(ev.AfterFallback)
	case transport.EventFallback:
		r.logger.Debug().Str("job_id", r.jobID).Msg("Transport switched to polling")
	case transport.EventSnapshot:
		return r.onSnapshot(ev.Snapshot)
	case transport.EventFailure:
		r.onFailure(ev.Err)
		return true
	}
	return false
}

func (r *Run) onLive(afterFallback bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || r.stopped.Load() {
		return
	}
	if afterFallback {
		// The server may replay the whole log on a fresh channel
		r.logs.Reset()
	}
	r.logger.Debug().Str("job_id", r.jobID).Bool("after_fallback", afterFallback).Msg("Live channel in use")
}

func (r *Run) onSnapshot(snap *models.JobSnapshot) bool {
	r.mu.Lock()
	if r.finished || r.stopped.Load() {
		r.mu.Unlock()
		return r.finished
	}

	observedAt := r.now()
	r.status = snap.Status
	r.items = snap.Items
	for _, id := range snap.ItemNames() {
		r.history.Record(id, snap.Items[id], observedAt)
	}
	r.display = tracking.DeriveAll(snap.Items, r.history)

	fresh := r.logs.ConsumeNew(snap.Logs)
	for _, entry := range fresh {
		r.appendLine(entry.Format())
	}

	terminal := 0
	for _, item := range snap.Items {
		if item.State().IsTerminal() {
			terminal++
		}
	}
	progressed := terminal != r.terminal
	r.terminal = terminal

	if snap.Status == models.JobStatusRunning {
		r.mu.Unlock()
		r.forward(fresh)
		if progressed {
			r.logger.LogItemProgress(terminal, len(snap.Items))
		}
		r.notify()
		return false
	}

	// Terminal: everything below runs once per run
	r.finished = true
	r.appendLine(fmt.Sprintf("Job finished: %s", snap.Status))
	r.mu.Unlock()

	r.forward(fresh)
	r.notify()
	r.transport.Stop()

	if snap.Status == models.JobStatusDone {
		r.finishDone()
	} else {
		r.finishError(snap)
	}
	return true
}

func (r *Run) finishDone() {
	outputs, err := r.client.GetJobOutputs(r.ctx, r.jobID)

	r.mu.Lock()
	if r.stopped.Load() {
		r.mu.Unlock()
		return
	}
	result := Result{JobID: r.jobID, Status: models.JobStatusDone}
	if err != nil {
		result.OutputsErr = fmt.Errorf("fetch outputs: %w", err)
		r.appendLine(fmt.Sprintf("Outputs unavailable: %v", err))
		r.logger.LogRunError(err, "fetch outputs")
	} else {
		r.outputs = outputs
		result.Outputs = outputs
		r.appendLine(fmt.Sprintf("Outputs: %s", outputNames(outputs)))
	}
	r.finishedAt = r.now()
	r.completion.resolve(result)
	record := r.recordLocked(nil)
	r.mu.Unlock()

	r.logger.LogRunComplete(string(models.JobStatusDone), record.Duration(), len(outputs))
	r.notify()
	r.save(record)
}

func (r *Run) finishError(snap *models.JobSnapshot) {
	jobErr := &JobError{JobID: r.jobID, Status: snap.Status, Message: snap.Error}

	r.mu.Lock()
	if r.stopped.Load() {
		r.mu.Unlock()
		return
	}
	message := snap.Error
	if message == "" {
		message = "unknown"
	}
	r.appendLine(fmt.Sprintf("Job error: %s", message))
	r.finishedAt = r.now()
	r.completion.resolve(Result{JobID: r.jobID, Status: snap.Status, Err: jobErr})
	record := r.recordLocked(jobErr)
	r.mu.Unlock()

	r.logger.LogRunError(jobErr, "job")
	r.notify()
	r.save(record)
}

func (r *Run) onFailure(err error) {
	r.mu.Lock()
	if r.finished || r.stopped.Load() {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.appendLine(fmt.Sprintf("Status polling failed, stopping: %v", err))
	r.finishedAt = r.now()
	r.completion.resolve(Result{JobID: r.jobID, Status: r.status, Err: err})
	record := r.recordLocked(err)
	r.mu.Unlock()

	r.logger.LogRunError(err, "poll status")
	r.notify()
	r.transport.Stop()
	r.save(record)
}

// halt is the shared teardown for Stop and context cancellation
func (r *Run) halt(reason string) {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}
	r.cancel()
	r.transport.Stop()

	r.mu.Lock()
	resolved := r.completion.resolve(Result{
		JobID:   r.jobID,
		Status:  r.status,
		Outputs: r.outputs,
		Err:     ErrRunStopped,
	})
	if resolved {
		r.appendLine("Run stopped")
		r.finishedAt = r.now()
	}
	r.mu.Unlock()

	if resolved {
		r.logger.LogRunStopped(reason)
		r.notify()
	}
}

func (r *Run) forward(entries []models.LogEntry) {
	if r.sink == nil || len(entries) == 0 {
		return
	}
	r.sink.WriteEntries(r.jobID, entries)
}

// appendLine adds a rendered log line. Caller holds r.mu (or owns r exclusively).
func (r *Run) appendLine(line string) {
	r.lines = append(r.lines, line)
}

func (r *Run) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// recordLocked builds the archive record. Caller holds r.mu.
func (r *Run) recordLocked(err error) *models.RunRecord {
	display := make(map[string]models.DisplayState, len(r.display))
	for id, ds := range r.display {
		display[id] = ds
	}
	record := &models.RunRecord{
		RunID:      r.id,
		JobID:      r.jobID,
		Status:     r.status,
		Items:      append([]string(nil), r.request.Items...),
		Stages:     r.request.StageNames(),
		Display:    display,
		Outputs:    append([]models.Output(nil), r.outputs...),
		LogLines:   append([]string(nil), r.lines...),
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
	if err != nil {
		record.Error = err.Error()
	}
	return record
}

func (r *Run) save(record *models.RunRecord) {
	if r.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := r.archive.SaveRun(ctx, record); err != nil {
		r.logger.Warn().Err(err).Str("run_id", r.id).Msg("Failed to archive run")
	}
}

func outputNames(outputs []models.Output) string {
	if len(outputs) == 0 {
		return "(none)"
	}
	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name
	}
	return strings.Join(names, ", ")
}
