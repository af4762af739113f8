// Package logging constructs the structured logger used across quill.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger writing to w at the given level. An
// unparseable level falls back to info.
func New(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(console).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// Default returns a stderr console logger at the given level.
func Default(level string) zerolog.Logger {
	return New(os.Stderr, level)
}
