package tracking

import (
	"github.com/ternarybob/pipewatch/internal/models"
)

// Derive computes the display state for one item.
//
// In-flight snapshots are shown as they are. Terminal snapshots take stage and
// worker from the item's last meaningful history entry, because the server
// clears them once the item reaches the sink. Without such an entry they stay
// empty and render as unknown.
func Derive(itemID string, current models.ItemSnapshot, history *History) models.DisplayState {
	state := current.State()
	if !state.IsTerminal() {
		stage, worker := models.Placement(current)
		return models.DisplayState{State: state, Stage: stage, Worker: worker}
	}

	display := models.DisplayState{State: state}
	if history == nil {
		return display
	}
	if entry, ok := history.LastMeaningful(itemID); ok {
		display.Stage, display.Worker = models.Placement(entry.Snapshot)
	}
	return display
}

// DeriveAll recomputes the display state of every item in the snapshot
func DeriveAll(items map[string]models.ItemSnapshot, history *History) map[string]models.DisplayState {
	out := make(map[string]models.DisplayState, len(items))
	for itemID, snap := range items {
		if snap == nil {
			continue
		}
		out[itemID] = Derive(itemID, snap, history)
	}
	return out
}
