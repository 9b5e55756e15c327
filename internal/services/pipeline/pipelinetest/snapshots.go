package pipelinetest

import "github.com/ternarybob/pipewatch/internal/models"

// Snapshot builds a status snapshot for scripting
func Snapshot(status models.JobStatus, items map[string]models.ItemSnapshot, logs ...models.LogEntry) models.JobSnapshot {
	return models.JobSnapshot{Status: status, Items: items, Logs: logs}
}

// Line builds an info log entry
func Line(ts, message string) models.LogEntry {
	return models.LogEntry{Timestamp: ts, Level: "info", Message: message}
}

// Lines returns the first n entries of a fixed, growing log
func Lines(entries []models.LogEntry, n int) []models.LogEntry {
	if n > len(entries) {
		n = len(entries)
	}
	return append([]models.LogEntry(nil), entries[:n]...)
}
