// Package render draws run state for the terminal.
package render

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ternarybob/pipewatch/internal/models"
)

// Cell statuses shown per item and stage
const (
	CellDone       = "done"
	CellProcessing = "processing"
	CellQueued     = "queued"
	CellError      = "error"
	CellNone       = "—"
)

// Cell is one item/stage intersection of the status table
type Cell struct {
	Status string
	Worker string
}

var (
	doneStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	processingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB74D")).Bold(true)
	queuedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	headerStyle     = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle       = lipgloss.NewStyle().Padding(0, 1)
)

// CellFor derives what one stage column shows for an item. Stages before the
// item's current stage are done, the current one is processing (or error),
// later ones are queued. A finished item shows done everywhere, with the
// backfilled worker on the stage that last touched it.
func CellFor(ds models.DisplayState, ok bool, stages []string, stage string) Cell {
	if !ok {
		return Cell{Status: CellQueued, Worker: CellNone}
	}

	cur := indexOf(stages, ds.Stage)
	idx := indexOf(stages, stage)

	switch ds.State {
	case models.ItemStateDone:
		if ds.Worker != "" && idx >= 0 && idx == cur {
			return Cell{Status: CellDone, Worker: ds.Worker}
		}
		return Cell{Status: CellDone, Worker: CellNone}

	case models.ItemStateError:
		if cur < 0 {
			return Cell{Status: CellError, Worker: orNone(ds.Worker)}
		}
		switch {
		case idx < 0:
			return Cell{Status: CellNone, Worker: CellNone}
		case idx < cur:
			return Cell{Status: CellDone, Worker: CellNone}
		case idx == cur:
			return Cell{Status: CellError, Worker: orNone(ds.Worker)}
		default:
			return Cell{Status: CellNone, Worker: CellNone}
		}
	}

	if ds.Stage == "" {
		return Cell{Status: CellQueued, Worker: CellNone}
	}
	if idx < 0 || cur < 0 {
		return Cell{Status: CellNone, Worker: CellNone}
	}
	switch {
	case idx < cur:
		return Cell{Status: CellDone, Worker: CellNone}
	case idx == cur:
		return Cell{Status: CellProcessing, Worker: orNone(ds.Worker)}
	default:
		return Cell{Status: CellQueued, Worker: CellNone}
	}
}

// StatusTable renders one row per item and a status/worker column pair per stage
func StatusTable(items []string, stages []string, display map[string]models.DisplayState) string {
	if len(stages) == 0 {
		return ""
	}

	headers := []string{"Image"}
	for _, stage := range stages {
		headers = append(headers, stage, "worker")
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		ds, ok := display[item]
		row := []string{item}
		for _, stage := range stages {
			cell := CellFor(ds, ok, stages, stage)
			row = append(row, styleFor(cell.Status).Render(cell.Status), cell.Worker)
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func styleFor(status string) lipgloss.Style {
	switch status {
	case CellDone:
		return doneStyle
	case CellProcessing:
		return processingStyle
	case CellError:
		return errorStyle
	default:
		return queuedStyle
	}
}

func indexOf(stages []string, stage string) int {
	if stage == "" {
		return -1
	}
	for i, s := range stages {
		if s == stage {
			return i
		}
	}
	return -1
}

func orNone(s string) string {
	if s == "" {
		return CellNone
	}
	return s
}
