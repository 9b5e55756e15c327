package main

import (
	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/services/pipeline"
	"github.com/ternarybob/pipewatch/internal/storage/badger"
)

func newClient() *pipeline.Client {
	return pipeline.NewClient(
		pipeline.WithBaseURL(config.Server.BaseURL),
		pipeline.WithTimeout(config.RequestTimeout()),
		pipeline.WithRateLimit(config.Server.RateLimit),
		pipeline.WithLogger(logger),
	)
}

// newDialer returns nil when the live channel is disabled, so runs poll only
func newDialer() interfaces.LiveDialer {
	if config.Transport.DisableLive {
		return nil
	}
	return pipeline.NewDialer(config.Server.BaseURL, logger)
}

// openArchive returns nil when archiving is disabled
func openArchive() (*badger.RunArchive, error) {
	if !config.Archive.Enabled {
		return nil, nil
	}
	db, err := badger.NewBadgerDB(logger, &config.Archive)
	if err != nil {
		return nil, err
	}
	return badger.NewRunArchive(db, logger), nil
}
