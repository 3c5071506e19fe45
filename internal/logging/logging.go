// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init installs the process-wide logger at the named level ("trace",
// "debug", "info", "warn", "error"), writing a human-readable console
// format to stderr when pretty is true and structured JSON otherwise.
// Called once at startup before any listener accepts.
func Init(level string, pretty bool) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)

	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}

// Component returns a logger tagged with the owning component's name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
