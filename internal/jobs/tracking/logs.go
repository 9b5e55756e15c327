package tracking

import (
	"github.com/ternarybob/pipewatch/internal/models"
)

// LogCursor surfaces each entry of a growing log sequence once.
//
// In the steady state it is a plain offset: every call returns the suffix past
// the number of entries already delivered. The cursor also counts how many times
// each entry content has been surfaced. After Reset (the live channel came back
// after polling, and the server may replay the whole log) the next sequence is
// walked from the start and an entry is surfaced only when its occurrence index
// for its content exceeds what was already shown. Repeated identical lines from
// the server are preserved; replays are not. Reconciling continues until a
// sequence covers every entry surfaced so far; only then is position trusted
// again.
type LogCursor struct {
	delivered int
	total     int
	surfaced  map[uint64]int
	reconcile bool
}

// NewLogCursor creates a cursor at offset zero
func NewLogCursor() *LogCursor {
	return &LogCursor{surfaced: make(map[uint64]int)}
}

// ConsumeNew returns the entries of seq not surfaced before and advances the
// cursor to len(seq). Calling it again with the same sequence returns nothing.
func (c *LogCursor) ConsumeNew(seq []models.LogEntry) []models.LogEntry {
	if c.reconcile || len(seq) < c.delivered {
		return c.reconcileFrom(seq)
	}

	if len(seq) == c.delivered {
		return nil
	}

	fresh := make([]models.LogEntry, 0, len(seq)-c.delivered)
	for _, entry := range seq[c.delivered:] {
		c.surfaced[entry.ContentKey()]++
		fresh = append(fresh, entry)
	}
	c.delivered = len(seq)
	c.total += len(fresh)
	return fresh
}

// Reset drops the offset. The next ConsumeNew reconciles by content.
func (c *LogCursor) Reset() {
	c.delivered = 0
	c.reconcile = true
}

// Delivered returns the current offset
func (c *LogCursor) Delivered() int {
	return c.delivered
}

func (c *LogCursor) reconcileFrom(seq []models.LogEntry) []models.LogEntry {
	occurrence := make(map[uint64]int, len(seq))
	var fresh []models.LogEntry
	for _, entry := range seq {
		key := entry.ContentKey()
		index := occurrence[key]
		occurrence[key] = index + 1
		if index < c.surfaced[key] {
			continue
		}
		c.surfaced[key]++
		fresh = append(fresh, entry)
	}
	c.delivered = len(seq)
	c.total += len(fresh)
	// A shorter sequence (a tail, or a shrunk replay) cannot anchor positions
	c.reconcile = len(seq) < c.total
	return fresh
}
