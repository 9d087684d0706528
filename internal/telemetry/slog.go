package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the global slog default logger from the logging
// configuration. format "json" selects a JSONHandler (production), anything
// else a TextHandler. level is one of "debug", "info", "warn", "error"
// (case-insensitive, "info" when unrecognised). Debug level additionally
// records the source file and line of each call site.
//
// All slog.Info/Warn/Error calls in the application go through the default
// logger, so nothing needs to carry a *slog.Logger around.
func SetupLogger(format, level string) {
	lvl := parseLevel(level)
	slog.SetDefault(slog.New(newHandler(os.Stdout, format, lvl)))
	slog.Info("logger initialised", "format", format, "level", lvl.String())
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, format string, lvl slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
