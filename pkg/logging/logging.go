// Package logging constructs the process-wide zerolog logger. Components
// derive child loggers with a "component" field instead of sharing one
// flat logger.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New creates the root logger at the given level. Unknown levels fall back
// to info.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
