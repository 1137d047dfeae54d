package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a structured JSON logger on stdout tagged with component.
// Level comes from SPARK_LOG_LEVEL; default info.
func NewLogger(component string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, component, ParseLogLevel(os.Getenv("SPARK_LOG_LEVEL")))
}

// NewLoggerTo creates a logger writing to w with an explicit level.
func NewLoggerTo(w io.Writer, component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ParseLogLevel maps debug|info|warn|error to a zerolog level.
// Unknown values fall back to info.
func ParseLogLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
