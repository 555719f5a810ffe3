/*
Package logx provides a structured logging wrapper based on zerolog.

It is responsible for initializing the global logger, configuring the output
format (JSON or console) based on the environment, and handing out child
loggers carrying a component context.
*/
package logx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger initializes the global zerolog instance.
// Development: Debug level with ConsoleWriter (human-readable).
// Production: Info level with standard JSON output.
func InitGlobalLogger(isDevelopment bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if isDevelopment {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	log.Logger = logger.With().Caller().Logger()
}

// Logger returns a pointer to the global zerolog.Logger instance.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// Info records a message at the Info level with optional key-value fields.
func Info(msg string, fields ...any) {
	Logger().Info().Fields(evenFields(fields)).CallerSkipFrame(1).Msg(msg)
}

// Warn records a message at the Warn level with optional key-value fields.
func Warn(msg string, fields ...any) {
	Logger().Warn().Fields(evenFields(fields)).CallerSkipFrame(1).Msg(msg)
}

// Error records an error and message at the Error level with optional key-value fields.
func Error(err error, msg string, fields ...any) {
	Logger().Error().Err(err).Fields(evenFields(fields)).CallerSkipFrame(1).Msg(msg)
}

// Fatal records an error and message at the Fatal level, then exits the process.
func Fatal(err error, msg string, fields ...any) {
	Logger().Fatal().Err(err).Fields(evenFields(fields)).CallerSkipFrame(1).Msg(msg)
}

// evenFields drops the fields slice entirely when it is not key-value shaped,
// preventing zerolog from panicking on an odd-length list.
func evenFields(fields []any) []any {
	if len(fields)%2 != 0 {
		Logger().Warn().Int("fields_count", len(fields)).Msg("logx call received odd number of fields, fields ignored")
		return nil
	}
	return fields
}
