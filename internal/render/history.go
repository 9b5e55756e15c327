package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ternarybob/pipewatch/internal/models"
)

// RunsTable lists archived runs, one row each
func RunsTable(records []*models.RunRecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.RunID,
			r.JobID,
			styleForJob(r.Status).Render(string(r.Status)),
			fmt.Sprintf("%d", len(r.Items)),
			strings.Join(r.Stages, " > "),
			r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration().Round(time.Millisecond).String(),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Run", "Job", "Status", "Items", "Stages", "Finished", "Duration").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}

// RunDetail renders one archived run: summary, status table and log
func RunDetail(r *models.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (job %s): %s in %s\n", r.RunID, r.JobID, styleForJob(r.Status).Render(string(r.Status)), r.Duration().Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", errorStyle.Render(r.Error))
	}
	if tbl := StatusTable(r.Items, r.Stages, r.Display); tbl != "" {
		b.WriteString(tbl)
		b.WriteString("\n")
	}
	for _, o := range r.Outputs {
		fmt.Fprintf(&b, "  %s  %s\n", o.Name, o.URL)
	}
	if len(r.LogLines) > 0 {
		b.WriteString(strings.Join(r.LogLines, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func styleForJob(status models.JobStatus) lipgloss.Style {
	switch status {
	case models.JobStatusDone:
		return doneStyle
	case models.JobStatusError:
		return errorStyle
	case models.JobStatusRunning:
		return processingStyle
	default:
		return queuedStyle
	}
}
