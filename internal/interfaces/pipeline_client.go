package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/pipewatch/internal/models"
)

// PipelineClient is the request/response surface of the remote pipeline server
type PipelineClient interface {
	// StartJob begins a run and returns the server-assigned job ID
	StartJob(ctx context.Context, req models.RunRequest) (string, error)
	// GetJobStatus returns a point-in-time snapshot used for polling
	GetJobStatus(ctx context.Context, jobID string) (*models.JobSnapshot, error)
	// GetJobOutputs lists the files a finished job produced
	GetJobOutputs(ctx context.Context, jobID string) ([]models.Output, error)
	// ListFilters returns the stages the server can run
	ListFilters(ctx context.Context) ([]models.FilterInfo, error)
}

// LiveConn is an open live channel for one job. *websocket.Conn satisfies it.
type LiveConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// LiveDialer opens the live channel for a job
type LiveDialer interface {
	Dial(ctx context.Context, jobID string) (LiveConn, error)
}
