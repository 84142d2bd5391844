package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process. Logs go to stderr so the
// terminal player keeps stdout.
func Setup(environment string, debug bool) zerolog.Logger {
	return SetupWithWriter(environment, debug, os.Stderr)
}

// SetupWithWriter configures zerolog writing human-readable lines to w.
func SetupWithWriter(environment string, debug bool, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if debug || environment == "development" {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	logger := zerolog.New(console).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
