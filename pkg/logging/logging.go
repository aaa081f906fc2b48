// Package logging centralizes zerolog setup so every component logs through
// the same structured, leveled sink.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Init configures the global zerolog logger. levelName is one of
// debug/info/warn/error (case-insensitive); anything else defaults to info.
// pretty requests the human-readable console writer (used in local/dev runs
// the way the teacher's GIN_MODE=debug enables verbose output).
func Init(levelName string, pretty bool) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(levelName) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

// Component returns a child logger tagged with a component name, the
// equivalent of the teacher's slog.With("component", name) idiom.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
