package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/pipewatch/internal/models"
	"github.com/ternarybob/pipewatch/internal/services/pipeline/pipelinetest"
)

func newTestClient(server *pipelinetest.Server) *Client {
	return NewClient(WithBaseURL(server.URL), WithTimeout(2*time.Second), WithRateLimit(0))
}

func TestClient_StartJobAndStatus(t *testing.T) {
	server := pipelinetest.NewServer()
	defer server.Close()

	server.AddJob(&pipelinetest.Job{
		ID: "job-1",
		Snapshots: []models.JobSnapshot{
			pipelinetest.Snapshot(models.JobStatusRunning, map[string]models.ItemSnapshot{
				"a.png": models.Processing{Stage: "resize", Worker: "worker-resize-1"},
			}, pipelinetest.Line("12:00:00", "started")),
		},
	})

	client := newTestClient(server)
	ctx := context.Background()

	jobID, err := client.StartJob(ctx, models.RunRequest{
		Items:  []string{"a.png"},
		Stages: []models.StageSpec{{Name: "resize", Params: map[string]interface{}{"width": 64}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, [][]string{{"a.png"}}, server.StartedImages())

	snap, err := client.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, snap.Status)
	assert.Equal(t, models.Processing{Stage: "resize", Worker: "worker-resize-1"}, snap.Items["a.png"])
	require.Len(t, snap.Logs, 1)
	assert.Equal(t, 1, server.Polls("job-1"))
}

func TestClient_ErrorDetailIsSurfaced(t *testing.T) {
	server := pipelinetest.NewServer()
	defer server.Close()

	_, err := newTestClient(server).GetJobStatus(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "Job not found", apiErr.Message)
	assert.Equal(t, "/api/jobs/missing/status", apiErr.Endpoint)
}

func TestClient_Outputs(t *testing.T) {
	server := pipelinetest.NewServer()
	defer server.Close()

	server.AddJob(&pipelinetest.Job{
		ID:      "job-2",
		Outputs: []models.Output{{Name: "a.png", URL: "/outputs/job-2/a.png"}},
	})
	client := newTestClient(server)

	outputs, err := client.GetJobOutputs(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, []models.Output{{Name: "a.png", URL: "/outputs/job-2/a.png"}}, outputs)

	server.AddJob(&pipelinetest.Job{ID: "job-3", OutputsStatus: 500})
	_, err = client.GetJobOutputs(context.Background(), "job-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outputs unavailable")
}

func TestClient_ListFiltersAndValidateStages(t *testing.T) {
	server := pipelinetest.NewServer()
	defer server.Close()

	filters, err := newTestClient(server).ListFilters(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, filters)

	assert.NoError(t, ValidateStages(filters, []models.StageSpec{{Name: "resize"}, {Name: "blur"}}))
	err = ValidateStages(filters, []models.StageSpec{{Name: "sharpen"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sharpen")
}

func TestClient_ContextCancellation(t *testing.T) {
	server := pipelinetest.NewServer()
	defer server.Close()

	server.AddJob(&pipelinetest.Job{ID: "slow", StatusDelay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server).GetJobStatus(ctx, "slow")
	require.Error(t, err)
}

func TestDialer_LiveURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://127.0.0.1:8000", "ws://127.0.0.1:8000/api/jobs/abc/ws"},
		{"https://pipeline.example.com/", "wss://pipeline.example.com/api/jobs/abc/ws"},
		{"http://host/prefix", "ws://host/prefix/api/jobs/abc/ws"},
	}
	for _, tt := range tests {
		got, err := NewDialer(tt.base, nil).LiveURL("abc")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := NewDialer("ftp://host", nil).LiveURL("abc")
	assert.Error(t, err)
}

func TestDialer_DialAndReceive(t *testing.T) {
	server := pipelinetest.NewServer()
	defer server.Close()

	server.AddJob(&pipelinetest.Job{
		ID: "live-1",
		Snapshots: []models.JobSnapshot{
			pipelinetest.Snapshot(models.JobStatusDone, map[string]models.ItemSnapshot{"a.png": models.Done{}}),
		},
	})

	conn, err := NewDialer(server.URL, nil).Dial(context.Background(), "live-1")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"done"`)
	assert.Equal(t, 1, server.Dials("live-1"))
}

func TestDialer_RejectedHandshake(t *testing.T) {
	server := pipelinetest.NewServer()
	defer server.Close()

	server.AddJob(&pipelinetest.Job{ID: "no-live", Live: pipelinetest.LiveReject})
	_, err := NewDialer(server.URL, nil).Dial(context.Background(), "no-live")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
