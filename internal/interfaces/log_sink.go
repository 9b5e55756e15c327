package interfaces

import (
	"github.com/ternarybob/pipewatch/internal/models"
)

// LogSink receives server log entries the first time they are surfaced
type LogSink interface {
	WriteEntries(jobID string, entries []models.LogEntry)
}

// LogSinkFunc adapts a function to LogSink
type LogSinkFunc func(jobID string, entries []models.LogEntry)

// WriteEntries calls f
func (f LogSinkFunc) WriteEntries(jobID string, entries []models.LogEntry) {
	f(jobID, entries)
}
