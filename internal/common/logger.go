package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const defaultLogTimeFormat = "15:04:05"

// InitLogger builds the arbor logger from the [logging] section.
// "file" writes a rotated pipewatch.log under logging.dir; console output is
// used when asked for or when no other writer is configured.
func InitLogger(config *Config) arbor.ILogger {
	timeFormat := config.Logging.TimeFormat
	if timeFormat == "" {
		timeFormat = defaultLogTimeFormat
	}

	outputs := make(map[string]bool, len(config.Logging.Output))
	for _, output := range config.Logging.Output {
		if output == "console" {
			output = "stdout"
		}
		outputs[output] = true
	}

	logger := arbor.NewLogger()
	if outputs["file"] {
		if writer, err := fileWriterConfig(config.Logging.Dir, timeFormat); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
			outputs["file"] = false
		} else {
			logger = logger.WithFileWriter(writer)
		}
	}
	if outputs["stdout"] || !outputs["file"] {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: timeFormat,
			TextOutput: true,
		})
	}

	return logger.WithLevelFromString(config.Logging.Level)
}

func fileWriterConfig(dir, timeFormat string) (models.WriterConfiguration, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.WriterConfiguration{}, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeFile,
		FileName:   filepath.Join(dir, "pipewatch.log"),
		TimeFormat: timeFormat,
		MaxSize:    10 * 1024 * 1024, // 10 MB
		MaxBackups: 3,
		TextOutput: true,
	}, nil
}
