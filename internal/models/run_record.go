package models

import "time"

// RunRecord is the archived summary of one finished run
type RunRecord struct {
	RunID      string                  `json:"run_id"`
	JobID      string                  `json:"job_id" badgerhold:"index"`
	Status     JobStatus               `json:"status"`
	Items      []string                `json:"items"`
	Stages     []string                `json:"stages"`
	Display    map[string]DisplayState `json:"display"`
	Outputs    []Output                `json:"outputs,omitempty"`
	Error      string                  `json:"error,omitempty"`
	LogLines   []string                `json:"log_lines,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at" badgerhold:"index"`
}

// Duration returns how long the run was observed
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
