package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
)

// ErrRunNotFound is returned when no archived run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// RunArchive implements interfaces.RunArchive for Badger
type RunArchive struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.RunArchive = (*RunArchive)(nil)

// NewRunArchive creates a new RunArchive instance
func NewRunArchive(db *BadgerDB, logger arbor.ILogger) *RunArchive {
	return &RunArchive{
		db:     db,
		logger: logger,
	}
}

// SaveRun stores record under its run ID, replacing any earlier version
func (s *RunArchive) SaveRun(ctx context.Context, record *models.RunRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("run record has no run ID")
	}
	if err := s.db.Store().Upsert(record.RunID, record); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	s.logger.Debug().
		Str("run_id", record.RunID).
		Str("job_id", record.JobID).
		Str("status", string(record.Status)).
		Msg("Run archived")
	return nil
}

// GetRun loads one archived run
func (s *RunArchive) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	var record models.RunRecord
	if err := s.db.Store().Get(runID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &record, nil
}

// ListRuns returns archived runs, most recently finished first
func (s *RunArchive) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	var records []models.RunRecord
	query := badgerhold.Where("RunID").Ne("").SortBy("FinishedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	out := make([]*models.RunRecord, len(records))
	for i := range records {
		out[i] = &records[i]
	}
	return out, nil
}

// Close closes the underlying database
func (s *RunArchive) Close() error {
	return s.db.Close()
}
