package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/models"
)

func openArchive(t *testing.T) *RunArchive {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.ArchiveConfig{Enabled: true, Path: t.TempDir()})
	require.NoError(t, err)
	archive := NewRunArchive(db, logger)
	t.Cleanup(func() { _ = archive.Close() })
	return archive
}

func TestRunArchive_SaveAndGet(t *testing.T) {
	archive := openArchive(t)
	ctx := context.Background()
	started := time.Date(2025, 10, 8, 9, 0, 0, 0, time.UTC)

	record := &models.RunRecord{
		RunID:  "run_1",
		JobID:  "job-1",
		Status: models.JobStatusDone,
		Items:  []string{"a.png", "b.png"},
		Stages: []string{"resize", "blur"},
		Display: map[string]models.DisplayState{
			"a.png": {State: models.ItemStateDone, Stage: "blur", Worker: "w2"},
			"b.png": {State: models.ItemStateDone},
		},
		Outputs:    []models.Output{{Name: "a.png", URL: "/outputs/job-1/a.png"}},
		LogLines:   []string{"Job: job-1", "Outputs: a.png"},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
	require.NoError(t, archive.SaveRun(ctx, record))

	got, err := archive.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, record.JobID, got.JobID)
	assert.Equal(t, record.Display, got.Display)
	assert.Equal(t, record.Outputs, got.Outputs)
	assert.Equal(t, 3*time.Second, got.Duration())

	// Saving again replaces
	record.Error = "late error"
	require.NoError(t, archive.SaveRun(ctx, record))
	got, err = archive.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, "late error", got.Error)
}

func TestRunArchive_GetMissing(t *testing.T) {
	_, err := openArchive(t).GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestRunArchive_ListNewestFirst(t *testing.T) {
	archive := openArchive(t)
	ctx := context.Background()
	base := time.Date(2025, 10, 8, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"run_a", "run_b", "run_c"} {
		require.NoError(t, archive.SaveRun(ctx, &models.RunRecord{
			RunID:      id,
			JobID:      "job-" + id,
			Status:     models.JobStatusDone,
			StartedAt:  base,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := archive.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run_c", runs[0].RunID)
	assert.Equal(t, "run_b", runs[1].RunID)

	all, err := archive.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRunArchive_RejectsMissingID(t *testing.T) {
	assert.Error(t, openArchive(t).SaveRun(context.Background(), &models.RunRecord{}))
}
