package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestSafeGo_RecoversPanicAndClosesDone(t *testing.T) {
	panicsBefore := RecoveredPanics()

	done := SafeGo(arbor.NewLogger(), "panicky", func() {
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after panic")
	}
	assert.Equal(t, panicsBefore+1, RecoveredPanics())
}

func TestSafeGo_TracksActiveGoroutines(t *testing.T) {
	before := ActiveGoroutines()
	release := make(chan struct{})

	done := SafeGo(nil, "blocked", func() { <-release })
	assert.Equal(t, before+1, ActiveGoroutines())

	close(release)
	<-done
	assert.Equal(t, before, ActiveGoroutines())
}

func TestInitLogger_FileOutputCreatesDirectory(t *testing.T) {
	config := NewDefaultConfig()
	config.Logging.Output = []string{"file"}
	config.Logging.Dir = filepath.Join(t.TempDir(), "nested", "logs")

	logger := InitLogger(config)
	require.NotNil(t, logger)

	info, err := os.Stat(config.Logging.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
