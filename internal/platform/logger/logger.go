package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New initializes a structured JSON logger writing to stdout.
// Level can be debug, info, warn or error; anything else falls back to info.
func New(level string) *slog.Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter is New with an explicit destination, mainly for tests.
func NewWithWriter(level string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}
