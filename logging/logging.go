// Package logging wires log/slog onto a zerolog backend.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configure a logger.
type Options struct {
	Level  slog.Level
	Format string
}

// New returns a slog.Logger writing to w through zerolog.
func New(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(opts.Format, FormatConsole) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	return slog.New(zeroslog.NewHandler(zl, &zeroslog.HandlerOptions{Level: opts.Level}))
}

// Setup builds a logger from textual settings and installs it as the slog
// default.
func Setup(w io.Writer, level, format string) *slog.Logger {
	logger := New(w, Options{Level: ParseLevel(level), Format: format})
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps trace/debug/info/warn/error to a slog level. Trace folds
// into debug; anything unknown is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StdLogger adapts logger to the *log.Logger the socket library expects.
// Lines are emitted at debug level.
func StdLogger(logger *slog.Logger) *log.Logger {
	return slog.NewLogLogger(logger.Handler(), slog.LevelDebug)
}
