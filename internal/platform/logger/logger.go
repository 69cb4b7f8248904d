package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/media-pipeline/internal/config"
)

// ServiceName is attached to every record written by the application logger.
const ServiceName = "media-pipeline"

// ParseLevel maps a configured level name to a slog.Level. The second
// return value is false for unknown names, which map to info.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Setup initializes and configures the application's logging system based on
// the provided configuration. It creates a structured JSON logger on stdout
// and sets it as the default logger for the application.
func Setup(cfg config.ServerConfig) (*slog.Logger, error) {
	return New(os.Stdout, cfg)
}

// New builds the application logger writing to out and installs it as the
// slog default.
func New(out io.Writer, cfg config.ServerConfig) (*slog.Logger, error) {
	level, ok := ParseLevel(cfg.LogLevel)
	if !ok {
		// Create a temporary logger to output the warning
		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.LogLevel,
			"default_level", "info")
	}

	instance := cfg.InstanceID
	if instance == "" {
		instance, _ = os.Hostname()
	}

	handler := NewMetadataHandler(out, &slog.HandlerOptions{Level: level}, map[string]string{
		"service":  ServiceName,
		"instance": instance,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, nil
}
