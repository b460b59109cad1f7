package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the service logger. Development output is human readable;
// production emits JSON lines.
func New(environment string) zerolog.Logger {
	level := zerolog.InfoLevel
	if environment != "production" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "imageforge").
		Str("env", environment).
		Logger()

	if environment != "production" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}
