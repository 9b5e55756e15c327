package interfaces

import (
	"context"

	"github.com/ternarybob/pipewatch/internal/models"
)

// RunArchive persists records of finished runs
type RunArchive interface {
	SaveRun(ctx context.Context, record *models.RunRecord) error
	GetRun(ctx context.Context, runID string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
	Close() error
}
