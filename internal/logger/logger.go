// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TimeFormat is used for console timestamps.
const TimeFormat = "2006/01/02 15:04:05"

// Init initializes the global logger writing to stdout at the given level.
func Init(level string) {
	InitWriter(os.Stdout, level)
}

// InitWriter initializes the global logger writing human-readable lines to w.
// Unknown levels fall back to info.
func InitWriter(w io.Writer, level string) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: TimeFormat}).
		With().
		Timestamp().
		Logger()
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel maps debug/info/warn/error to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child of the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
