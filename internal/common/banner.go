package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved server target
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("pipewatch", GetVersion())

	logger.Debug().
		Str("server", config.Server.BaseURL).
		Str("poll_interval", config.PollInterval().String()).
		Bool("live", !config.Transport.DisableLive).
		Bool("archive", config.Archive.Enabled).
		Msg("Resolved configuration")
}
