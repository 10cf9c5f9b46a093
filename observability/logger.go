package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance
var Logger *slog.Logger

// InitLoggerWithLevel initializes the global logger on stderr. Stdout is
// reserved for the screening report. Production selects JSON output, otherwise
// text.
func InitLoggerWithLevel(production bool, level slog.Level) {
	InitLoggerWithWriter(os.Stderr, production, level)
}

// InitLoggerWithWriter initializes the logger writing to w
func InitLoggerWithWriter(w io.Writer, production bool, level slog.Level) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if production {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// current returns the global logger, creating a text logger at info level
// when none was initialized
func current() *slog.Logger {
	if Logger == nil {
		InitLoggerWithLevel(false, slog.LevelInfo)
	}
	return Logger
}

// Info logs an info message
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// WithSymbol returns a logger with symbol field
func WithSymbol(symbol string) *slog.Logger {
	return current().With("symbol", symbol)
}

// WithError returns a logger with error field
func WithError(err error) *slog.Logger {
	return current().With("error", err)
}
