package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/jobs/tracking"
	"github.com/ternarybob/pipewatch/internal/jobs/transport"
	"github.com/ternarybob/pipewatch/internal/jobs/types"
	"github.com/ternarybob/pipewatch/internal/models"
)

// fakeClient answers outputs requests and counts them
type fakeClient struct {
	mu          sync.Mutex
	outputs     []models.Output
	outputsErr  error
	outputCalls int
}

func (f *fakeClient) StartJob(ctx context.Context, req models.RunRequest) (string, error) {
	return "job-fake", nil
}

func (f *fakeClient) GetJobStatus(ctx context.Context, jobID string) (*models.JobSnapshot, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeClient) GetJobOutputs(ctx context.Context, jobID string) ([]models.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputCalls++
	return f.outputs, f.outputsErr
}

func (f *fakeClient) ListFilters(ctx context.Context) ([]models.FilterInfo, error) {
	return nil, nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputCalls
}

type recordingSink struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (s *recordingSink) WriteEntries(jobID string, entries []models.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
}

type memoryArchive struct {
	mu      sync.Mutex
	records []*models.RunRecord
}

func (a *memoryArchive) SaveRun(ctx context.Context, record *models.RunRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, record)
	return nil
}

func (a *memoryArchive) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.records {
		if r.RunID == runID {
			return r, nil
		}
	}
	return nil, errors.New("not found")
}

func (a *memoryArchive) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*models.RunRecord(nil), a.records...), nil
}

func (a *memoryArchive) Close() error { return nil }

func (a *memoryArchive) saved() []*models.RunRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*models.RunRecord(nil), a.records...)
}

// newHandlerRun builds a run whose handlers are driven directly by the test
func newHandlerRun(t *testing.T, client *fakeClient) *Run {
	t.Helper()
	logger := arbor.NewLogger()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clock := time.Date(2025, 10, 8, 9, 0, 0, 0, time.UTC)

	return &Run{
		id:         "run-test",
		jobID:      "job-fake",
		request:    models.RunRequest{Items: []string{"a.png", "b.png"}, Stages: []models.StageSpec{{Name: "resize"}, {Name: "blur"}}},
		client:     client,
		transport:  transport.NewManager(client, nil, transport.DefaultConfig(), logger),
		logger:     types.NewRunLogger(logger, "run-test", "job-fake"),
		now:        func() time.Time { clock = clock.Add(time.Second); return clock },
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan transport.Event),
		history:    tracking.NewHistory(),
		logs:       tracking.NewLogCursor(),
		display:    make(map[string]models.DisplayState),
		changed:    make(chan struct{}, 1),
		completion: newCompletion(),
	}
}

func snapshotEvent(status models.JobStatus, items map[string]models.ItemSnapshot, logs ...models.LogEntry) transport.Event {
	return transport.Event{
		Kind:     transport.EventSnapshot,
		Snapshot: &models.JobSnapshot{JobID: "job-fake", Status: status, Items: items, Logs: logs},
	}
}

func entry(ts, msg string) models.LogEntry {
	return models.LogEntry{Timestamp: ts, Level: "info", Message: msg}
}

func TestRun_TerminalActionRunsOnce(t *testing.T) {
	client := &fakeClient{outputs: []models.Output{{Name: "a.png", URL: "/outputs/a.png"}}}
	r := newHandlerRun(t, client)

	done := snapshotEvent(models.JobStatusDone, map[string]models.ItemSnapshot{"a.png": models.Done{}})
	assert.True(t, r.handle(done))
	assert.True(t, r.handle(done))

	assert.Equal(t, 1, client.calls())
	result, ok := r.Completion().Result()
	require.True(t, ok)
	assert.True(t, result.Succeeded())
	assert.Equal(t, client.outputs, result.Outputs)

	finishedLines := 0
	for _, line := range r.LogLines() {
		if strings.HasPrefix(line, "Job finished:") {
			finishedLines++
		}
	}
	assert.Equal(t, 1, finishedLines)
}

func TestRun_LateSnapshotAfterTerminalIsIgnored(t *testing.T) {
	r := newHandlerRun(t, &fakeClient{})

	r.handle(snapshotEvent(models.JobStatusError, map[string]models.ItemSnapshot{
		"a.png": models.Failed{Stage: "blur", Worker: "w2", Error: "bad kernel"},
	}))
	before := r.Display()

	r.handle(snapshotEvent(models.JobStatusRunning, map[string]models.ItemSnapshot{
		"a.png": models.Processing{Stage: "resize", Worker: "w1"},
	}, entry("12:00:09", "late line")))

	assert.Equal(t, before, r.Display())
	assert.NotContains(t, r.LogText(), "late line")
}

func TestRun_JobErrorSurfacedVerbatim(t *testing.T) {
	client := &fakeClient{}
	r := newHandlerRun(t, client)

	ev := snapshotEvent(models.JobStatusError, map[string]models.ItemSnapshot{"a.png": models.Queued{}})
	ev.Snapshot.Error = "worker pool crashed"
	r.handle(ev)

	result, ok := r.Completion().Result()
	require.True(t, ok)
	var jobErr *JobError
	require.True(t, errors.As(result.Err, &jobErr))
	assert.Equal(t, "worker pool crashed", jobErr.Message)
	assert.Contains(t, r.LogText(), "Job error: worker pool crashed")
	assert.Equal(t, 0, client.calls())
}

func TestRun_OutputFetchFailureKeepsRunFinished(t *testing.T) {
	client := &fakeClient{outputsErr: errors.New("disk gone")}
	r := newHandlerRun(t, client)

	r.handle(snapshotEvent(models.JobStatusDone, map[string]models.ItemSnapshot{"a.png": models.Done{}}))

	result, ok := r.Completion().Result()
	require.True(t, ok)
	assert.NoError(t, result.Err)
	require.Error(t, result.OutputsErr)
	assert.Contains(t, result.OutputsErr.Error(), "disk gone")
	assert.True(t, r.Finished())
	assert.Contains(t, r.LogText(), "Outputs unavailable: disk gone")
	assert.Equal(t, transport.StateClosed, r.transport.State())
}

func TestRun_PollFailureStopsRun(t *testing.T) {
	r := newHandlerRun(t, &fakeClient{})

	err := errors.Join(transport.ErrPollFailed, errors.New("connection refused"))
	assert.True(t, r.handle(transport.Event{Kind: transport.EventFailure, Err: err}))

	result, ok := r.Completion().Result()
	require.True(t, ok)
	assert.ErrorIs(t, result.Err, transport.ErrPollFailed)
	assert.True(t, r.Finished())
	assert.Contains(t, r.LogText(), "Status polling failed, stopping:")
}

func TestRun_LogResetAfterFallbackDoesNotDuplicate(t *testing.T) {
	sink := &recordingSink{}
	r := newHandlerRun(t, &fakeClient{})
	r.sink = sink

	items := map[string]models.ItemSnapshot{"a.png": models.Queued{}}
	first := []models.LogEntry{entry("12:00:00", "accepted"), entry("12:00:01", "queued a.png")}
	r.handle(snapshotEvent(models.JobStatusRunning, items, first...))

	r.handle(transport.Event{Kind: transport.EventLive, AfterFallback: true})
	replay := append(append([]models.LogEntry{}, first...), entry("12:00:02", "resize a.png"))
	r.handle(snapshotEvent(models.JobStatusRunning, items, replay...))

	text := r.LogText()
	assert.Equal(t, 1, strings.Count(text, "accepted"))
	assert.Equal(t, 1, strings.Count(text, "queued a.png"))
	assert.Equal(t, 1, strings.Count(text, "resize a.png"))
	assert.Len(t, sink.entries, 3)
}

func TestRun_DisplayBackfillAcrossSnapshots(t *testing.T) {
	r := newHandlerRun(t, &fakeClient{})

	r.handle(snapshotEvent(models.JobStatusRunning, map[string]models.ItemSnapshot{
		"a.png": models.Processing{Stage: "resize", Worker: "w1"},
		"b.png": models.Queued{},
	}))
	assert.Equal(t, models.DisplayState{State: models.ItemStateProcessing, Stage: "resize", Worker: "w1"}, r.Display()["a.png"])

	r.handle(snapshotEvent(models.JobStatusRunning, map[string]models.ItemSnapshot{
		"a.png": models.Done{},
		"b.png": models.Processing{Stage: "resize", Worker: "w3"},
	}))
	assert.Equal(t, models.DisplayState{State: models.ItemStateDone, Stage: "resize", Worker: "w1"}, r.Display()["a.png"])

	select {
	case <-r.Changed():
	default:
		t.Fatal("expected change notification")
	}
}

func TestRun_DisplayReturnsCopy(t *testing.T) {
	r := newHandlerRun(t, &fakeClient{})
	r.handle(snapshotEvent(models.JobStatusRunning, map[string]models.ItemSnapshot{"a.png": models.Queued{}}))

	display := r.Display()
	display["a.png"] = models.DisplayState{State: models.ItemStateDone}
	assert.Equal(t, models.ItemStateQueued, r.Display()["a.png"].State)
}

func TestRun_ArchivesFinishedRun(t *testing.T) {
	archive := &memoryArchive{}
	r := newHandlerRun(t, &fakeClient{outputs: []models.Output{{Name: "a.png"}}})
	r.archive = archive

	r.handle(snapshotEvent(models.JobStatusDone, map[string]models.ItemSnapshot{"a.png": models.Done{}}))

	saved := archive.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "job-fake", saved[0].JobID)
	assert.Equal(t, models.JobStatusDone, saved[0].Status)
	assert.Equal(t, []string{"resize", "blur"}, saved[0].Stages)
	assert.Contains(t, saved[0].LogLines, "Outputs: a.png")
	assert.False(t, saved[0].FinishedAt.IsZero())
}

func TestCompletion_ResolvesOnce(t *testing.T) {
	c := newCompletion()
	_, ok := c.Result()
	assert.False(t, ok)

	assert.True(t, c.resolve(Result{JobID: "a"}))
	assert.False(t, c.resolve(Result{JobID: "b"}))

	result, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", result.JobID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newCompletion().Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_JobErrorWithoutMessageLogsUnknown(t *testing.T) {
	r := newHandlerRun(t, &fakeClient{})

	r.handle(snapshotEvent(models.JobStatusError, map[string]models.ItemSnapshot{"a.png": models.Queued{}}))

	result, ok := r.Completion().Result()
	require.True(t, ok)
	assert.EqualError(t, result.Err, "job job-fake ended with status error")
	assert.Contains(t, r.LogLines(), "Job error: unknown")
}
