package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/common"
)

var (
	// Global flags
	configFiles []string
	serverURL   string
	logLevel    string

	// Global state, set in PersistentPreRunE
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "pipewatch",
	Short: "Run image pipeline jobs and follow their progress",
	Long: `pipewatch starts jobs on an image pipeline server and follows them to
completion over the live channel, falling back to polling when it drops.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Pipeline server URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(runCmd, statusCmd, filtersCmd, historyCmd, versionCmd)
}

// setup loads configuration (defaults -> files -> env -> flags), then the logger
func setup(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("pipewatch.toml"); err == nil {
			configFiles = append(configFiles, "pipewatch.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, serverURL, logLevel)
	if err := config.Validate(); err != nil {
		return err
	}

	common.InstallCrashHandler(config.Logging.Dir)
	logger = common.InitLogger(config)
	common.PrintBanner(config, logger)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("server", config.Server.BaseURL).
		Str("poll_interval", config.PollInterval().String()).
		Bool("live", !config.Transport.DisableLive).
		Bool("archive", config.Archive.Enabled).
		Msg("Configuration loaded")
	return nil
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
