// Package logger configures the structured logger shared by the CLI and the
// fitting loop.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Default is written to stderr so command output on stdout stays clean.
var Default *slog.Logger

func init() {
	Default = NewText("warn", os.Stderr)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a JSON logger.
func New(level string, output io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// NewText creates a text logger.
func NewText(level string, output io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Configure builds a logger from a level and format ("json" or "text") and
// installs it as the default.
func Configure(level, format string, output io.Writer) *slog.Logger {
	var l *slog.Logger
	if strings.EqualFold(format, "json") {
		l = New(level, output)
	} else {
		l = NewText(level, output)
	}
	SetDefault(l)
	return l
}

func SetDefault(logger *slog.Logger) {
	Default = logger
	slog.SetDefault(logger)
}

func Debug(msg string, args ...any) { Default.Debug(msg, args...) }
func Info(msg string, args ...any)  { Default.Info(msg, args...) }
func Warn(msg string, args ...any)  { Default.Warn(msg, args...) }
func Error(msg string, args ...any) { Default.Error(msg, args...) }

func With(args ...any) *slog.Logger {
	return Default.With(args...)
}
