package logger

import (
	"os"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// SevereKey marks log events that indicate a data-integrity bug
// somewhere else in the system, as opposed to bad user input. Alerting
// should key on this field.
const SevereKey = "severe"

func New() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()

	logger = logger.Level(zerolog.DebugLevel)

	return logger
}

func SetLevel(level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()

	logger = logger.Level(level)

	return logger
}

// Severe logs at error level with the severe marker set. Used for
// referential-integrity failures that must be surfaced loudly.
func Severe(logger zerolog.Logger) *zerolog.Event {
	return logger.Error().Bool(SevereKey, true)
}

var Module = fx.Provide(New)
