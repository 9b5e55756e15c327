// Package monitor runs jobs on the pipeline server and follows them to
// completion: one Run per job, at most one active Run per Controller.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/jobs/tracking"
	"github.com/ternarybob/pipewatch/internal/jobs/transport"
	"github.com/ternarybob/pipewatch/internal/jobs/types"
	"github.com/ternarybob/pipewatch/internal/models"
)

// Controller starts runs and owns the active one
type Controller struct {
	client          interfaces.PipelineClient
	dialer          interfaces.LiveDialer
	transportConfig transport.Config
	sink            interfaces.LogSink
	archive         interfaces.RunArchive
	logger          arbor.ILogger
	validate        *validator.Validate
	now             func() time.Time

	mu      sync.Mutex
	current *Run
}

// Option configures the Controller
type Option func(*Controller)

// WithTransportConfig overrides the transport settings
func WithTransportConfig(config transport.Config) Option {
	return func(c *Controller) {
		c.transportConfig = config
	}
}

// WithLogSink sets where new server log entries are forwarded
func WithLogSink(sink interfaces.LogSink) Option {
	return func(c *Controller) {
		c.sink = sink
	}
}

// WithArchive saves every finished run
func WithArchive(archive interfaces.RunArchive) Option {
	return func(c *Controller) {
		c.archive = archive
	}
}

// WithClock sets the time source for history timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a controller. dialer may be nil to poll only.
func NewController(client interfaces.PipelineClient, dialer interfaces.LiveDialer, logger arbor.ILogger, opts ...Option) *Controller {
	c := &Controller{
		client:          client,
		dialer:          dialer,
		transportConfig: transport.DefaultConfig(),
		logger:          logger,
		validate:        validator.New(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sink == nil {
		c.sink = NewArborLogSink(logger)
	}
	return c
}

// Start stops the active run, if any, and starts a new job. The previous run
// is fully torn down before the new one exists. Cancelling ctx stops the run.
func (c *Controller) Start(ctx context.Context, req models.RunRequest) (*Run, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Stop()
		c.current = nil
	}

	jobID, err := c.client.StartJob(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}

	run := c.newRun(ctx, jobID, req)
	if err := run.start(); err != nil {
		return nil, err
	}
	c.current = run
	return run, nil
}

// Current returns the active run, or nil
func (c *Controller) Current() *Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stop stops the active run. Safe to call with no run.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Stop()
	}
}

func (c *Controller) newRun(ctx context.Context, jobID string, req models.RunRequest) *Run {
	runID := common.NewRunID()
	logger := types.NewRunLogger(c.logger, runID, jobID)
	runCtx, cancel := context.WithCancel(ctx)

	return &Run{
		id:         runID,
		jobID:      jobID,
		request:    req,
		client:     c.client,
		transport:  transport.NewManager(c.client, c.dialer, c.transportConfig, logger.Logger()),
		sink:       c.sink,
		archive:    c.archive,
		logger:     logger,
		now:        c.now,
		ctx:        runCtx,
		cancel:     cancel,
		events:     make(chan transport.Event),
		history:    tracking.NewHistory(),
		logs:       tracking.NewLogCursor(),
		display:    make(map[string]models.DisplayState),
		changed:    make(chan struct{}, 1),
		completion: newCompletion(),
		startedAt:  c.now(),
	}
}
