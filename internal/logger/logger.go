// Package logger builds the zerolog loggers used by the ccontacts binary.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a logger suited to the given environment: human-readable
// console output for development, JSON for anything else. Logs always go
// to stderr so stdout stays reserved for command output.
func New(environment string) zerolog.Logger {
	switch strings.ToLower(environment) {
	case "", "development", "dev":
		return NewDevelopment()
	default:
		return NewProduction()
	}
}

// NewDevelopment creates a console logger with timestamps.
func NewDevelopment() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "2006-01-02 15:04:05",
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// NewProduction creates a JSON logger with UNIX timestamps.
func NewProduction() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
