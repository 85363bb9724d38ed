package utils

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. Components obtain it through GetLogger
// so they do not depend on initialization order.
var Logger *logrus.Logger

// InitLogger configures the global logger from the logging config section.
// Format is "json" or "text"; output is "stdout", "stderr", or "file" with
// a path. Invalid settings return a CONFIGURATION_ERROR instead of silently
// logging somewhere unexpected.
func InitLogger(level, format, output, file string) error {
	logger := logrus.New()

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return NewAppError(ErrCodeConfiguration, "Unknown log level", level)
	}
	logger.SetLevel(parsed)

	switch format {
	case "json", "":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	default:
		return NewAppError(ErrCodeConfiguration, "Unknown log format", format)
	}

	switch output {
	case "stdout", "":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	case "file":
		if file == "" {
			return NewAppError(ErrCodeConfiguration, "Log output is file but no path is configured")
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return NewAppError(ErrCodeConfiguration, "Cannot open log file", err.Error())
		}
		logger.SetOutput(f)
	default:
		return NewAppError(ErrCodeConfiguration, "Unknown log output", output)
	}

	Logger = logger
	return nil
}

// GetLogger returns the global logger, falling back to info-level JSON on
// stdout when InitLogger has not run yet.
func GetLogger() *logrus.Logger {
	if Logger == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return Logger
}
