package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Transport   TransportConfig `toml:"transport"`
	Logging     LoggingConfig   `toml:"logging"`
	Archive     ArchiveConfig   `toml:"archive"`
}

// ServerConfig describes the remote pipeline server
type ServerConfig struct {
	BaseURL   string `toml:"base_url" validate:"required,url"` // e.g. "http://127.0.0.1:8000"
	Timeout   string `toml:"timeout"`                          // HTTP request timeout, e.g. "30s"
	RateLimit int    `toml:"rate_limit" validate:"gte=0"`      // Max requests per second (0 = unlimited)
}

// TransportConfig controls the live channel and the polling fallback
type TransportConfig struct {
	PollInterval    string `toml:"poll_interval"`                   // e.g. "300ms" - status poll period while polling
	LiveIdleTimeout string `toml:"live_idle_timeout"`               // e.g. "30s" - live channel read deadline
	DialAttempts    int    `toml:"dial_attempts" validate:"gte=1"` // Live channel dial attempts before polling (1 + reconnects)
	UpgradeInterval string `toml:"upgrade_interval"`                // e.g. "10s" - retry live while polling ("" or "0" = never)
	DisableLive     bool   `toml:"disable_live"`                    // Skip the live channel and poll from the start
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`                                       // "stdout", "file"
	Dir        string   `toml:"dir"`                                          // Log and crash file directory
	TimeFormat string   `toml:"time_format"`                                  // Time format for logs (default: "15:04:05")
}

// ArchiveConfig controls the local archive of finished runs
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // Badger database directory
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			BaseURL:   "http://127.0.0.1:8000",
			Timeout:   "30s",
			RateLimit: 20,
		},
		Transport: TransportConfig{
			PollInterval:    "300ms", // matches the web client's fast poll
			LiveIdleTimeout: "30s",
			DialAttempts:    2,
			UpgradeInterval: "",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			Dir:        "logs",
			TimeFormat: "15:04:05",
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Path:    "./data/runs",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PIPEWATCH_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if baseURL := os.Getenv("PIPEWATCH_SERVER_URL"); baseURL != "" {
		config.Server.BaseURL = baseURL
	}
	if timeout := os.Getenv("PIPEWATCH_SERVER_TIMEOUT"); timeout != "" {
		config.Server.Timeout = timeout
	}
	if rateLimit := os.Getenv("PIPEWATCH_SERVER_RATE_LIMIT"); rateLimit != "" {
		if r, err := strconv.Atoi(rateLimit); err == nil {
			config.Server.RateLimit = r
		}
	}

	// Transport configuration
	if pollInterval := os.Getenv("PIPEWATCH_POLL_INTERVAL"); pollInterval != "" {
		config.Transport.PollInterval = pollInterval
	}
	if idle := os.Getenv("PIPEWATCH_LIVE_IDLE_TIMEOUT"); idle != "" {
		config.Transport.LiveIdleTimeout = idle
	}
	if attempts := os.Getenv("PIPEWATCH_DIAL_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Transport.DialAttempts = a
		}
	}
	if upgrade := os.Getenv("PIPEWATCH_UPGRADE_INTERVAL"); upgrade != "" {
		config.Transport.UpgradeInterval = upgrade
	}
	if disableLive := os.Getenv("PIPEWATCH_DISABLE_LIVE"); disableLive != "" {
		if d, err := strconv.ParseBool(disableLive); err == nil {
			config.Transport.DisableLive = d
		}
	}

	// Logging configuration
	if level := os.Getenv("PIPEWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PIPEWATCH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if dir := os.Getenv("PIPEWATCH_LOG_DIR"); dir != "" {
		config.Logging.Dir = dir
	}

	// Archive configuration
	if enabled := os.Getenv("PIPEWATCH_ARCHIVE_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Archive.Enabled = e
		}
	}
	if path := os.Getenv("PIPEWATCH_ARCHIVE_PATH"); path != "" {
		config.Archive.Path = path
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, serverURL string, logLevel string) {
	if serverURL != "" {
		config.Server.BaseURL = serverURL
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// Validate checks struct constraints and that every duration string parses
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"server.timeout":              c.Server.Timeout,
		"transport.poll_interval":     c.Transport.PollInterval,
		"transport.live_idle_timeout": c.Transport.LiveIdleTimeout,
		"transport.upgrade_interval":  c.Transport.UpgradeInterval,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s=%q: %w", key, value, err)
		}
	}

	if c.PollInterval() <= 0 {
		return fmt.Errorf("invalid configuration: transport.poll_interval must be positive")
	}

	return nil
}

// RequestTimeout returns the parsed HTTP timeout (default 30s)
func (c *Config) RequestTimeout() time.Duration {
	return parseDurationOr(c.Server.Timeout, 30*time.Second)
}

// PollInterval returns the parsed polling interval (default 300ms)
func (c *Config) PollInterval() time.Duration {
	return parseDurationOr(c.Transport.PollInterval, 300*time.Millisecond)
}

// LiveIdleTimeout returns the parsed live channel read deadline (0 = none)
func (c *Config) LiveIdleTimeout() time.Duration {
	return parseDurationOr(c.Transport.LiveIdleTimeout, 0)
}

// UpgradeInterval returns the parsed live upgrade probe interval (0 = disabled)
func (c *Config) UpgradeInterval() time.Duration {
	return parseDurationOr(c.Transport.UpgradeInterval, 0)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
