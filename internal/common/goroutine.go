package common

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

var (
	activeGoroutines int64
	recoveredPanics  int64
)

// ActiveGoroutines returns how many SafeGo goroutines have not yet returned
func ActiveGoroutines() int64 {
	return atomic.LoadInt64(&activeGoroutines)
}

// RecoveredPanics returns how many SafeGo goroutines ended in a panic
func RecoveredPanics() int64 {
	return atomic.LoadInt64(&recoveredPanics)
}

// SafeGo runs fn on a new goroutine, logging instead of crashing if it
// panics. The returned channel closes once fn has returned or panicked:
//
//	done := common.SafeGo(logger, "transport-"+jobID, m.run)
//	...
//	<-done
func SafeGo(logger arbor.ILogger, name string, fn func()) <-chan struct{} {
	atomic.AddInt64(&activeGoroutines, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer atomic.AddInt64(&activeGoroutines, -1)
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			atomic.AddInt64(&recoveredPanics, 1)
			buf := make([]byte, 4096)
			stack := string(buf[:runtime.Stack(buf, false)])
			if logger == nil {
				fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, stack)
				return
			}
			logger.Error().
				Str("goroutine", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", stack).
				Msg("Recovered from panic in goroutine")
		}()

		fn()
	}()

	return done
}
