// Package logging wires up the process-wide zerolog logger. Every core
// package asks for a component-tagged child logger instead of writing
// fmt.Printf("[Component] ...") directly, the way MrJc01-cromedia's core
// package does.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global logger level and output writer. verbose selects
// debug-level output; otherwise info-level.
func Init(verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// NewLogger builds a standalone logger writing to w, bypassing the global
// logger. Used by tests that want to capture output.
func NewLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// WithComponent returns a child of the global logger tagged with a
// component field, e.g. WithComponent("decoder") for every log line a
// decoder adapter emits.
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
