package monitor

import (
	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
)

// ArborLogSink forwards server log entries to an arbor logger at the
// entry's own level
type ArborLogSink struct {
	logger arbor.ILogger
}

var _ interfaces.LogSink = (*ArborLogSink)(nil)

// NewArborLogSink creates a sink writing through logger
func NewArborLogSink(logger arbor.ILogger) *ArborLogSink {
	return &ArborLogSink{logger: logger}
}

// WriteEntries implements interfaces.LogSink
func (s *ArborLogSink) WriteEntries(jobID string, entries []models.LogEntry) {
	for _, entry := range entries {
		event := levelEvent(s.logger, entry.Level).
			Str("job_id", jobID).
			Str("server_time", entry.Timestamp)
		if entry.StageName != "" {
			event = event.Str("stage", entry.StageName)
		}
		if entry.StageIndex != nil {
			event = event.Int("stage_index", *entry.StageIndex)
		}
		if entry.Worker != "" {
			event = event.Str("worker", entry.Worker)
		}
		if entry.File != "" {
			event = event.Str("file", entry.File)
		}
		event.Msg(entry.Message)
	}
}

// levelEvent maps a server level string onto an arbor event
func levelEvent(logger arbor.ILogger, level string) arbor.ILogEvent {
	switch plog.ParseLevel(level) {
	case plog.TraceLevel, plog.DebugLevel:
		return logger.Debug()
	case plog.WarnLevel:
		return logger.Warn()
	case plog.ErrorLevel, plog.FatalLevel, plog.PanicLevel:
		return logger.Error()
	default:
		return logger.Info()
	}
}
