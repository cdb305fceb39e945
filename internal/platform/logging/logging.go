package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds the root logger. format "text" writes a human-friendly console
// stream, anything else writes JSON lines to stdout.
func Setup(format string) zerolog.Logger {
	return New(os.Stdout, format)
}

func New(w io.Writer, format string) zerolog.Logger {
	if format == "text" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Str("service", "benefits-server").Logger()
}

// SetLevel parses a zerolog level name and applies it globally. Unknown names
// leave the level at info.
func SetLevel(name string) {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
