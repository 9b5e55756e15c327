// Package tracking holds the per-run bookkeeping that sits between raw job
// snapshots and what the user sees: item history, display derivation and the
// log delivery cursor.
//
// None of the types here lock. A run owns one instance of each and mutates them
// from its event loop only.
package tracking

import (
	"time"

	"github.com/ternarybob/pipewatch/internal/models"
)

// HistoryEntry is one distinct snapshot observed for an item
type HistoryEntry struct {
	Snapshot   models.ItemSnapshot
	ObservedAt time.Time
}

// History is a per-item append-only log of distinct snapshots.
// Consecutive entries for an item always differ in state, stage or worker.
type History struct {
	items map[string][]HistoryEntry
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{items: make(map[string][]HistoryEntry)}
}

// Record appends the snapshot if it differs from the item's last entry.
// Returns true when an entry was appended.
func (h *History) Record(itemID string, snapshot models.ItemSnapshot, observedAt time.Time) bool {
	if snapshot == nil {
		return false
	}
	entries := h.items[itemID]
	if n := len(entries); n > 0 && models.SameSnapshot(entries[n-1].Snapshot, snapshot) {
		return false
	}
	h.items[itemID] = append(entries, HistoryEntry{Snapshot: snapshot, ObservedAt: observedAt})
	return true
}

// Reset forgets every item
func (h *History) Reset() {
	h.items = make(map[string][]HistoryEntry)
}

// LastMeaningful returns the most recent entry handled by a real processing
// worker, skipping entries without a worker and entries at the terminal sink.
func (h *History) LastMeaningful(itemID string) (HistoryEntry, bool) {
	entries := h.items[itemID]
	for i := len(entries) - 1; i >= 0; i-- {
		_, worker := models.Placement(entries[i].Snapshot)
		if worker != "" && worker != models.TerminalSinkWorker {
			return entries[i], true
		}
	}
	return HistoryEntry{}, false
}

// Entries returns a copy of the item's history
func (h *History) Entries(itemID string) []HistoryEntry {
	entries := h.items[itemID]
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// Len returns the number of entries recorded for an item
func (h *History) Len(itemID string) int {
	return len(h.items[itemID])
}
