package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/pipewatch/internal/models"
)

func TestCellFor(t *testing.T) {
	stages := []string{"resize", "blur", "grayscale"}

	tests := []struct {
		name  string
		ds    models.DisplayState
		ok    bool
		stage string
		want  Cell
	}{
		{"unknown item", models.DisplayState{}, false, "resize", Cell{CellQueued, CellNone}},
		{"queued", models.DisplayState{State: models.ItemStateQueued}, true, "blur", Cell{CellQueued, CellNone}},
		{"before current", models.DisplayState{State: models.ItemStateProcessing, Stage: "blur", Worker: "w2"}, true, "resize", Cell{CellDone, CellNone}},
		{"current", models.DisplayState{State: models.ItemStateProcessing, Stage: "blur", Worker: "w2"}, true, "blur", Cell{CellProcessing, "w2"}},
		{"after current", models.DisplayState{State: models.ItemStateProcessing, Stage: "blur", Worker: "w2"}, true, "grayscale", Cell{CellQueued, CellNone}},
		{"unknown stage", models.DisplayState{State: models.ItemStateProcessing, Stage: "sharpen", Worker: "w9"}, true, "blur", Cell{CellNone, CellNone}},
		{"done with backfill", models.DisplayState{State: models.ItemStateDone, Stage: "blur", Worker: "w2"}, true, "blur", Cell{CellDone, "w2"}},
		{"done other stage", models.DisplayState{State: models.ItemStateDone, Stage: "blur", Worker: "w2"}, true, "resize", Cell{CellDone, CellNone}},
		{"done without history", models.DisplayState{State: models.ItemStateDone}, true, "grayscale", Cell{CellDone, CellNone}},
		{"error at stage", models.DisplayState{State: models.ItemStateError, Stage: "blur", Worker: "w2"}, true, "blur", Cell{CellError, "w2"}},
		{"error before stage", models.DisplayState{State: models.ItemStateError, Stage: "blur", Worker: "w2"}, true, "resize", Cell{CellDone, CellNone}},
		{"error after stage", models.DisplayState{State: models.ItemStateError, Stage: "blur", Worker: "w2"}, true, "grayscale", Cell{CellNone, CellNone}},
		{"error without stage", models.DisplayState{State: models.ItemStateError}, true, "resize", Cell{CellError, CellNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CellFor(tt.ds, tt.ok, stages, tt.stage))
		})
	}
}

func TestStatusTable(t *testing.T) {
	out := StatusTable(
		[]string{"a.png", "b.png"},
		[]string{"resize", "blur"},
		map[string]models.DisplayState{
			"a.png": {State: models.ItemStateDone, Stage: "blur", Worker: "w2"},
		},
	)

	assert.Contains(t, out, "Image")
	assert.Contains(t, out, "resize")
	assert.Contains(t, out, "a.png")
	assert.Contains(t, out, "w2")
	assert.Contains(t, out, "queued")

	assert.Empty(t, StatusTable([]string{"a.png"}, nil, nil))
}

func TestLogWriter_PrintsOnlyGrowth(t *testing.T) {
	var buf bytes.Buffer
	w := NewLogWriter(&buf)

	require.NoError(t, w.Update("Job: abc"))
	require.NoError(t, w.Update("Job: abc"))
	require.NoError(t, w.Update("Job: abc\n[12:00:00] INFO started"))

	assert.Equal(t, "Job: abc\n[12:00:00] INFO started\n", buf.String())

	// A fresh run's text starts over
	buf.Reset()
	require.NoError(t, w.Update("Job: x"))
	assert.Equal(t, "Job: x\n", buf.String())
	assert.Equal(t, 1, strings.Count(buf.String(), "Job"))
}

func TestRunsTableAndDetail(t *testing.T) {
	start := time.Date(2025, 10, 8, 9, 0, 0, 0, time.UTC)
	record := &models.RunRecord{
		RunID:      "run_1",
		JobID:      "job-1",
		Status:     models.JobStatusError,
		Items:      []string{"a.png"},
		Stages:     []string{"resize", "blur"},
		Display:    map[string]models.DisplayState{"a.png": {State: models.ItemStateError, Stage: "blur", Worker: "w2"}},
		Error:      "job job-1 failed: bad kernel",
		LogLines:   []string{"Job: job-1", "Job error: bad kernel"},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}

	list := RunsTable([]*models.RunRecord{record})
	assert.Contains(t, list, "run_1")
	assert.Contains(t, list, "resize > blur")
	assert.Contains(t, list, "1.5s")

	detail := RunDetail(record)
	assert.Contains(t, detail, "Run run_1 (job job-1)")
	assert.Contains(t, detail, "bad kernel")
	assert.Contains(t, detail, "Job error: bad kernel")
}
