package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// JobStatus represents the overall state of a pipeline job
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"

	// JobStatusNotFound is the live channel sentinel for an unknown job ID.
	// It never appears in a poll response (the server answers 404 instead).
	JobStatusNotFound JobStatus = "not_found"
)

// IsTerminal reports whether the job has finished
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// StageSpec is one named stage with its filter parameters
type StageSpec struct {
	Name   string                 `json:"name" yaml:"name" toml:"name" validate:"required"`
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
}

// JobSnapshot is a point-in-time view of a job. Each update replaces the previous
// value wholesale; only history and logs are layered on top by the client.
type JobSnapshot struct {
	JobID  string                  `json:"job_id"`
	Status JobStatus               `json:"status"`
	Items  map[string]ItemSnapshot `json:"-"`
	Steps  []StageSpec             `json:"steps,omitempty"`
	Logs   []LogEntry              `json:"logs,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

type wireJobSnapshot struct {
	JobID  string                     `json:"job_id"`
	Status JobStatus                  `json:"status"`
	Images map[string]json.RawMessage `json:"images"`
	Steps  []StageSpec                `json:"steps,omitempty"`
	Logs   []LogEntry                 `json:"logs,omitempty"`
	Error  *string                    `json:"error"`
}

// UnmarshalJSON decodes the server's status payload, including per-item variants
func (j *JobSnapshot) UnmarshalJSON(data []byte) error {
	var w wireJobSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	items := make(map[string]ItemSnapshot, len(w.Images))
	for name, raw := range w.Images {
		snap, err := DecodeItemSnapshot(raw)
		if err != nil {
			return fmt.Errorf("item %s: %w", name, err)
		}
		items[name] = snap
	}

	*j = JobSnapshot{
		JobID:  w.JobID,
		Status: w.Status,
		Items:  items,
		Steps:  w.Steps,
		Logs:   w.Logs,
		Error:  deref(w.Error),
	}
	return nil
}

// MarshalJSON encodes the snapshot in the server's wire format
func (j JobSnapshot) MarshalJSON() ([]byte, error) {
	images := make(map[string]json.RawMessage, len(j.Items))
	for name, snap := range j.Items {
		raw, err := EncodeItemSnapshot(snap)
		if err != nil {
			return nil, err
		}
		images[name] = raw
	}
	w := wireJobSnapshot{
		JobID:  j.JobID,
		Status: j.Status,
		Images: images,
		Steps:  j.Steps,
		Logs:   j.Logs,
	}
	if j.Error != "" {
		w.Error = &j.Error
	}
	return json.Marshal(w)
}

// ItemNames returns item names in stable order
func (j *JobSnapshot) ItemNames() []string {
	names := make([]string, 0, len(j.Items))
	for name := range j.Items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Output is one file the sink produced
type Output struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RunRequest is what the user submits to start a run
type RunRequest struct {
	Items  []string    `json:"images" yaml:"items" toml:"items" validate:"required,min=1,dive,required"`
	Stages []StageSpec `json:"steps" yaml:"stages" toml:"stages" validate:"required,min=1,dive"`
}

// StageNames returns the distinct, non-empty stage names in order
func (r RunRequest) StageNames() []string {
	return DistinctStageNames(r.Stages)
}

// DistinctStageNames drops empty and repeated names, keeping first occurrence order
func DistinctStageNames(stages []StageSpec) []string {
	seen := make(map[string]bool, len(stages))
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		if s.Name == "" || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		names = append(names, s.Name)
	}
	return names
}

// FilterInfo describes a filter the server can run as a stage
type FilterInfo struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}
