package models

import (
	"encoding/json"
	"fmt"
)

// ItemState is the server's coarse state for one pipeline item
type ItemState string

const (
	ItemStateQueued     ItemState = "queued"
	ItemStateProcessing ItemState = "processing"
	ItemStateDone       ItemState = "done"
	ItemStateError      ItemState = "error"
)

// TerminalSinkWorker is the worker name the server reports for the output sink.
// It marks completion rather than a processing step.
const TerminalSinkWorker = "sink"

// IsTerminal reports whether the item will not change again within a run
func (s ItemState) IsTerminal() bool {
	return s == ItemStateDone || s == ItemStateError
}

// ItemSnapshot is the server's current belief about one item.
// It is a closed set of variants: Queued, Processing, Done and Failed.
// Stage and worker exist only on the variants where the server reports them.
type ItemSnapshot interface {
	State() ItemState
	isItemSnapshot()
}

// Queued: waiting for the first stage
type Queued struct{}

// Processing: currently inside Stage, handled by Worker
type Processing struct {
	Stage  string
	Worker string
}

// Done: written by the sink
type Done struct{}

// Failed: the server gave up on the item. Stage and Worker identify where,
// when the server reported it.
type Failed struct {
	Stage  string
	Worker string
	Error  string
}

func (Queued) State() ItemState     { return ItemStateQueued }
func (Processing) State() ItemState { return ItemStateProcessing }
func (Done) State() ItemState       { return ItemStateDone }
func (Failed) State() ItemState     { return ItemStateError }

func (Queued) isItemSnapshot()     {}
func (Processing) isItemSnapshot() {}
func (Done) isItemSnapshot()       {}
func (Failed) isItemSnapshot()     {}

// Placement returns the stage and worker carried by a snapshot, if any
func Placement(s ItemSnapshot) (stage, worker string) {
	switch v := s.(type) {
	case Processing:
		return v.Stage, v.Worker
	case Failed:
		return v.Stage, v.Worker
	default:
		return "", ""
	}
}

// SameSnapshot compares state, stage and worker
func SameSnapshot(a, b ItemSnapshot) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	aStage, aWorker := Placement(a)
	bStage, bWorker := Placement(b)
	return a.State() == b.State() && aStage == bStage && aWorker == bWorker
}

// wireItem is the JSON shape the server sends per item
type wireItem struct {
	State         ItemState `json:"state"`
	CurrentFilter *string   `json:"current_filter"`
	Worker        *string   `json:"worker"`
	Error         string    `json:"error,omitempty"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DecodeItemSnapshot converts one wire item into its variant.
// Unknown states are rejected so a malformed message never reaches the trackers.
func DecodeItemSnapshot(data []byte) (ItemSnapshot, error) {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode item snapshot: %w", err)
	}
	switch w.State {
	case ItemStateQueued:
		return Queued{}, nil
	case ItemStateProcessing:
		return Processing{Stage: deref(w.CurrentFilter), Worker: deref(w.Worker)}, nil
	case ItemStateDone:
		return Done{}, nil
	case ItemStateError:
		return Failed{Stage: deref(w.CurrentFilter), Worker: deref(w.Worker), Error: w.Error}, nil
	default:
		return nil, fmt.Errorf("decode item snapshot: unknown state %q", w.State)
	}
}

// EncodeItemSnapshot produces the wire form of a snapshot
func EncodeItemSnapshot(s ItemSnapshot) ([]byte, error) {
	w := wireItem{State: s.State()}
	switch v := s.(type) {
	case Processing:
		w.CurrentFilter, w.Worker = &v.Stage, &v.Worker
	case Failed:
		w.CurrentFilter, w.Worker = &v.Stage, &v.Worker
		w.Error = v.Error
	case Done:
		sink := TerminalSinkWorker
		w.Worker = &sink
	}
	return json.Marshal(w)
}

// DisplayState is what the user sees for one item. Empty Stage/Worker means unknown.
type DisplayState struct {
	State  ItemState `json:"state"`
	Stage  string    `json:"current_stage,omitempty"`
	Worker string    `json:"worker,omitempty"`
}
