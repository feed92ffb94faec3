// Package logging builds the gateway's structured logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// New builds a zerolog.Logger from a level name ("debug", "info", "warn",
// "error") and a format ("console" or "json"). An unrecognized level falls
// back to info rather than failing startup over a cosmetic setting.
func New(level, format string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339, NoColor: false}
	}

	return zerolog.New(output).
		Level(parsed).
		With().
		Timestamp().
		Str("service", "voicebridge").
		Logger()
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}

// NewTest returns a debug-level logger writing to w, for tests that want
// to assert on log content.
func NewTest(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
