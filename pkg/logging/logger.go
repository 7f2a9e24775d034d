// Package logging configures structured zerolog output for the catalog pager.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs paginator and request internals.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs normal operation events.
	LevelInfo LogLevel = "info"

	// LevelWarn logs recoverable failures.
	LevelWarn LogLevel = "warn"

	// LevelError logs failures that need attention.
	LevelError LogLevel = "error"

	// LevelDisabled turns logging off (useful in tests).
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is added as the "service" field when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(toZerolog(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ParseLevel validates a level name such as "WARN" or "warning".
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "disabled", "off", "none":
		return LevelDisabled, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// toZerolog converts LogLevel to zerolog.Level, defaulting to info.
func toZerolog(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelDisabled:
		return zerolog.Disabled
	default:
		if parsed, err := ParseLevel(string(level)); err == nil && parsed != LevelInfo {
			return toZerolog(parsed)
		}
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: paginator internals
//   - Fetch start/finish with key and next_key
//   - Advance calls skipped because a fetch is in flight
//   - Results discarded after a reset (generation mismatch)
//   - Catalog query strings and page sizes
//
// Info: normal operation events
//   - Category or language changes
//   - Browse sessions created
//   - Server startup/shutdown
//
// Warn: recoverable failures
//   - Failed page fetches (the cursor stays put, caller may retry)
//   - Recovered panics in a fetch
//   - Preference store errors (falls back to all books)
//
// Error: failures requiring attention
//   - Catalog unreachable
//   - Redis unreachable at startup
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (paginator, catalog-client, browser, prefs)
//   - paginator: paginator name
//   - key / next_key: cursor of the fetch and of the following one
//   - generation: reset generation a fetch belongs to
//   - endpoint, status, error_class: catalog request details
//   - session_id, category, language: browse session details
