// Package badger stores archived runs in a local Badger database.
package badger

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/pipewatch/internal/common"
)

// BadgerDB owns the archive's badgerhold store
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	path   string
}

// NewBadgerDB opens (creating if needed) the database at config.Path.
// Badger's own warnings and errors are routed through logger.
func NewBadgerDB(logger arbor.ILogger, config *common.ArchiveConfig) (*BadgerDB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("archive path is empty")
	}
	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(config.Path).
		WithLogger(&badgerLogger{logger: logger}).
		WithLoggingLevel(badger.WARNING)

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive at %s: %w", config.Path, err)
	}

	logger.Debug().Str("path", config.Path).Msg("Run archive opened")
	return &BadgerDB{store: store, logger: logger, path: config.Path}, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close closes the database
func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}

// badgerLogger adapts arbor to badger.Logger
type badgerLogger struct {
	logger arbor.ILogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Str("component", "badger").Msg(trimFormat(format, args))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Str("component", "badger").Msg(trimFormat(format, args))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Str("component", "badger").Msg(trimFormat(format, args))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Str("component", "badger").Msg(trimFormat(format, args))
}

func trimFormat(format string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
