package render

import (
	"fmt"
	"io"
	"strings"
)

// LogWriter prints an append-only log text incrementally
type LogWriter struct {
	w       io.Writer
	printed int
}

// NewLogWriter creates a LogWriter on w
func NewLogWriter(w io.Writer) *LogWriter {
	return &LogWriter{w: w}
}

// Update prints whatever text gained since the last call. Text that does not
// extend what was printed is reprinted from the start.
func (l *LogWriter) Update(text string) error {
	if len(text) < l.printed {
		l.printed = 0
	}
	if len(text) == l.printed {
		return nil
	}
	fresh := strings.TrimPrefix(text[l.printed:], "\n")
	l.printed = len(text)
	if fresh == "" {
		return nil
	}
	_, err := fmt.Fprintln(l.w, fresh)
	return err
}
