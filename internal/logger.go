package internal

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a slog logger from a level string (debug, info, warn,
// error). Unknown values fall back to info rather than failing startup.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l})
	return slog.New(handler)
}
