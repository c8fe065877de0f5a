// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Str("service", "hatebu-galaxy").Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForUser derives a logger scoped to one bookmark user.
func ForUser(logger zerolog.Logger, username string) zerolog.Logger {
	return logger.With().Str("username", username).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Per-page and per-batch request flow
//   - Edge cache hit/miss, key, TTL
//   - Partition merge counts (replaced / appended)
//
// Info: Normal operation events
//   - Gather pass start/finish
//   - Completion marker written
//   - Server startup/shutdown, scheduled top-ups
//
// Warn: Warning conditions that don't prevent operation
//   - A page or star batch failed (contribution dropped for this pass)
//   - Retry attempts, upstream throttling
//   - Unknown star colors, malformed star URIs
//
// Error: Error conditions requiring attention
//   - Partition read/write failures
//   - A gather pass aborted at the containment boundary
//   - Configuration errors
//
// Context Fields:
//   - username: bookmark user
//   - page: bookmark feed page number
//   - year: partition year
//   - batch: star batch index
//   - eid: bookmark id
//   - error_class: client, server, rate_limit, network
//   - duration: elapsed time
