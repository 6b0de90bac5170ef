// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Init sets the global level and writer. Terminals get human readable output,
// everything else JSON lines.
func Init(lvl zerolog.Level) {
	log.Logger = New(os.Stderr, lvl, term.IsTerminal(int(os.Stderr.Fd())))
	zerolog.SetGlobalLevel(lvl)
	log.Debug().Str("level", lvl.String()).Msg("Logger initialized")
}

// New creates a logger writing to w.
func New(w io.Writer, lvl zerolog.Level, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
