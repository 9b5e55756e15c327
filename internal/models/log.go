package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// LogEntry represents a single entry of a job's log stream.
//
// The server's stream is append-only per job: a later status never carries
// fewer entries than an earlier one.
//
// Optional context (stage, worker, file) is present when the entry was emitted
// from inside a stage. StageIndex is 1-based as the server numbers its workers.
//
// Log Levels: "debug", "info", "warn", "error"
type LogEntry struct {
	Timestamp  string `json:"timestamp"`
	Level      string `json:"level"`
	StageIndex *int   `json:"stage_index,omitempty"`
	StageName  string `json:"stage_name,omitempty"`
	Worker     string `json:"worker,omitempty"`
	File       string `json:"file,omitempty"`
	Message    string `json:"message"`
}

// ContentKey hashes every field of the entry. Two entries with the same key are
// indistinguishable to the user.
func (e LogEntry) ContentKey() uint64 {
	d := xxhash.New()
	stageIndex := ""
	if e.StageIndex != nil {
		stageIndex = strconv.Itoa(*e.StageIndex)
	}
	for _, field := range []string{e.Timestamp, e.Level, stageIndex, e.StageName, e.Worker, e.File, e.Message} {
		_, _ = d.WriteString(field)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// Format renders the entry as one log text line:
//
//	[12:00:01] INFO resize#1 worker-resize-1 a.png: started
func (e LogEntry) Format() string {
	var b strings.Builder
	if e.Timestamp != "" {
		fmt.Fprintf(&b, "[%s] ", e.Timestamp)
	}
	if e.Level != "" {
		b.WriteString(strings.ToUpper(e.Level))
		b.WriteByte(' ')
	}
	if e.StageName != "" {
		b.WriteString(e.StageName)
		if e.StageIndex != nil {
			fmt.Fprintf(&b, "#%d", *e.StageIndex)
		}
		b.WriteByte(' ')
	}
	if e.Worker != "" {
		b.WriteString(e.Worker)
		b.WriteByte(' ')
	}
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}
