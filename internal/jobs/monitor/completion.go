package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/pipewatch/internal/models"
)

var (
	// ErrRunStopped resolves the completion of a run stopped before it finished
	ErrRunStopped = errors.New("run stopped before the job finished")

	// ErrInvalidRequest wraps request validation failures
	ErrInvalidRequest = errors.New("invalid run request")
)

// JobError is the server-reported failure of a job
type JobError struct {
	JobID   string
	Status  models.JobStatus
	Message string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s ended with status %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Result is the outcome of a run
type Result struct {
	JobID string
	// Status is the last status observed from the server
	Status  models.JobStatus
	Outputs []models.Output
	// Err is nil only when the job finished done
	Err error
	// OutputsErr is set when the job finished done but listing outputs failed
	OutputsErr error
}

// Succeeded reports whether the job finished done
func (r Result) Succeeded() bool {
	return r.Err == nil && r.Status == models.JobStatusDone
}

// Completion is a one-shot future resolved exactly once per run. It can be
// checked at any time, including after it resolved.
type Completion struct {
	once   sync.Once
	done   chan struct{}
	result Result
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// resolve stores r if nothing was stored yet. Reports whether r was stored.
func (c *Completion) resolve(r Result) bool {
	resolved := false
	c.once.Do(func() {
		c.result = r
		close(c.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the result is available
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Result returns the result and whether it is available yet
func (c *Completion) Result() (Result, bool) {
	select {
	case <-c.done:
		return c.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the result is available or ctx is done
func (c *Completion) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
