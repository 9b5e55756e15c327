// Package transport keeps one job's status flowing to its consumer: over the
// live channel while it is healthy, by polling otherwise.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
)

// State is the transport lifecycle state
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateLive
	StatePolling
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind identifies what an Event carries
type EventKind int

const (
	// EventSnapshot carries a status snapshot from either source
	EventSnapshot EventKind = iota
	// EventLive reports the live channel opened
	EventLive
	// EventFallback reports the switch to polling
	EventFallback
	// EventFailure reports that polling failed; the transport is closed
	EventFailure
)

// Event is delivered to the consumer in transport order
type Event struct {
	Kind     EventKind
	Snapshot *models.JobSnapshot
	// AfterFallback is set on EventLive when the channel reopened after polling
	AfterFallback bool
	Err           error
}

// ErrPollFailed wraps the error that ended polling
var ErrPollFailed = errors.New("status polling failed")

// ErrAlreadyStarted is returned when Start is called on a used transport
var ErrAlreadyStarted = errors.New("transport already started")

// Config tunes the transport
type Config struct {
	PollInterval time.Duration
	// LiveIdleTimeout closes a live channel that has been silent this long. Zero disables it.
	LiveIdleTimeout time.Duration
	// DialAttempts is how many times the live channel is dialled before polling
	DialAttempts   int
	DialRetryDelay time.Duration
	// UpgradeInterval, when set, retries the live channel while polling
	UpgradeInterval time.Duration
	DisableLive     bool
}

// DefaultConfig returns the stock transport settings
func DefaultConfig() Config {
	return Config{
		PollInterval:    300 * time.Millisecond,
		LiveIdleTimeout: 30 * time.Second,
		DialAttempts:    2,
		DialRetryDelay:  200 * time.Millisecond,
	}
}

// ConfigFrom maps application config onto transport settings
func ConfigFrom(cfg *common.Config) Config {
	c := DefaultConfig()
	c.PollInterval = cfg.PollInterval()
	c.LiveIdleTimeout = cfg.LiveIdleTimeout()
	c.DialAttempts = cfg.Transport.DialAttempts
	c.UpgradeInterval = cfg.UpgradeInterval()
	c.DisableLive = cfg.Transport.DisableLive
	return c
}

// Manager drives a single job's transport. At most one live channel or
// polling loop is active at a time, and nothing is emitted after Stop returns.
type Manager struct {
	client interfaces.PipelineClient
	dialer interfaces.LiveDialer
	config Config
	logger arbor.ILogger

	mu       sync.Mutex
	state    State
	jobID    string
	cancel   context.CancelFunc
	conn     interfaces.LiveConn
	done     <-chan struct{}
	fellBack bool
}

// NewManager creates an idle transport
func NewManager(client interfaces.PipelineClient, dialer interfaces.LiveDialer, config Config, logger arbor.ILogger) *Manager {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.DialAttempts < 1 {
		config.DialAttempts = 1
	}
	if config.DialRetryDelay <= 0 {
		config.DialRetryDelay = DefaultConfig().DialRetryDelay
	}
	if dialer == nil {
		config.DisableLive = true
	}
	return &Manager{
		client: client,
		dialer: dialer,
		config: config,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins delivering events for jobID. It returns immediately; the
// live channel is attempted first unless disabled.
func (m *Manager) Start(ctx context.Context, jobID string, events chan<- Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return ErrAlreadyStarted
	}

	modeCtx, cancel := context.WithCancel(ctx)
	m.jobID = jobID
	m.cancel = cancel
	m.state = StateConnecting
	m.done = common.SafeGo(m.logger, "transport-"+jobID, func() {
		m.run(modeCtx, events)
	})
	return nil
}

// Stop cancels any pending request, closes the channel, stops polling and
// waits for the transport goroutine to exit. Safe to call in any state, more
// than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	conn := m.conn
	m.conn = nil
	done := m.done
	m.state = StateClosed
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) run(ctx context.Context, events chan<- Event) {
	if !m.config.DisableLive {
		if conn := m.connect(ctx); conn != nil {
			if !m.live(ctx, conn, events) {
				return
			}
		}
	}

	for ctx.Err() == nil {
		conn := m.poll(ctx, events)
		if conn == nil {
			return
		}
		if !m.live(ctx, conn, events) {
			return
		}
	}
}

// connect dials the live channel, retrying up to DialAttempts times
func (m *Manager) connect(ctx context.Context) interfaces.LiveConn {
	var conn interfaces.LiveConn
	backoff := retry.WithMaxRetries(uint64(m.config.DialAttempts-1), retry.NewConstant(m.config.DialRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := m.dialer.Dial(ctx, m.jobID)
		if err != nil {
			m.logger.Debug().Err(err).Str("job_id", m.jobID).Msg("Live channel dial failed")
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn().Err(err).Str("job_id", m.jobID).Msg("Live channel unavailable, polling instead")
		}
		return nil
	}
	return conn
}

// attach records conn as the active channel. It fails if Stop already ran.
func (m *Manager) attach(conn interfaces.LiveConn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		_ = conn.Close()
		return false
	}
	m.conn = conn
	m.state = StateLive
	return true
}

func (m *Manager) detach(conn interfaces.LiveConn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
}

// setState moves to s unless Stop already closed the transport
func (m *Manager) setState(s State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return false
	}
	m.state = s
	return true
}

// live reads snapshots until the channel closes or errors. It returns false
// when the transport is shutting down and true when polling should take over.
func (m *Manager) live(ctx context.Context, conn interfaces.LiveConn, events chan<- Event) bool {
	if !m.attach(conn) {
		return false
	}
	defer m.detach(conn)

	m.mu.Lock()
	afterFallback := m.fellBack
	m.mu.Unlock()

	m.logger.Info().Str("job_id", m.jobID).Bool("after_fallback", afterFallback).Msg("Live channel open")
	if !emit(ctx, events, Event{Kind: EventLive, AfterFallback: afterFallback}) {
		return false
	}

	for {
		if m.config.LiveIdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(m.config.LiveIdleTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			m.logger.Info().Err(err).Str("job_id", m.jobID).Msg("Live channel closed, falling back to polling")
			return true
		}

		var snap models.JobSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			m.logger.Debug().Err(err).Str("job_id", m.jobID).Msg("Ignoring malformed live message")
			continue
		}
		if snap.Status == "" || snap.Status == models.JobStatusNotFound {
			m.logger.Debug().Str("job_id", m.jobID).Str("status", string(snap.Status)).Msg("Ignoring live message without job state")
			continue
		}
		if snap.JobID == "" {
			snap.JobID = m.jobID
		}
		if !emit(ctx, events, Event{Kind: EventSnapshot, Snapshot: &snap}) {
			return false
		}
	}
}

// poll requests a snapshot every PollInterval. The first request goes out one
// interval after polling begins. A failed request ends the transport. If an
// upgrade probe reopens the live channel the connection is returned.
func (m *Manager) poll(ctx context.Context, events chan<- Event) interfaces.LiveConn {
	if !m.setState(StatePolling) {
		return nil
	}
	m.mu.Lock()
	m.fellBack = true
	m.mu.Unlock()

	if !emit(ctx, events, Event{Kind: EventFallback}) {
		return nil
	}

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	var upgrade <-chan time.Time
	if m.config.UpgradeInterval > 0 && !m.config.DisableLive {
		upgradeTicker := time.NewTicker(m.config.UpgradeInterval)
		defer upgradeTicker.Stop()
		upgrade = upgradeTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-upgrade:
			conn, err := m.dialer.Dial(ctx, m.jobID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Debug().Err(err).Str("job_id", m.jobID).Msg("Live channel still unavailable")
				continue
			}
			return conn

		case <-ticker.C:
			snap, err := m.client.GetJobStatus(ctx, m.jobID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Error().Err(err).Str("job_id", m.jobID).Msg("Status poll failed, stopping transport")
				m.setState(StateClosed)
				emit(ctx, events, Event{Kind: EventFailure, Err: fmt.Errorf("%w: %v", ErrPollFailed, err)})
				return nil
			}
			if !emit(ctx, events, Event{Kind: EventSnapshot, Snapshot: snap}) {
				return nil
			}
		}
	}
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
