package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// Config holds logger configuration derived from flags and the config file.
type Config struct {
	// Level is the base log level name ("error", "warn", "info", "debug").
	Level string

	// Verbosity raises the level: each repeated -v flag moves one level
	// towards debug.
	Verbosity int
}

// levels orders the usable levels from least to most verbose.
var levels = []zerolog.Level{
	zerolog.ErrorLevel,
	zerolog.WarnLevel,
	zerolog.InfoLevel,
	zerolog.DebugLevel,
}

// Configure applies the configuration to the default logger.
func Configure(cfg *Config) {
	SetLevel(cfg.ResolveLevel())
}

// ResolveLevel combines the base level and the verbosity count.
func (c *Config) ResolveLevel() zerolog.Level {
	base := 0
	switch strings.ToLower(c.Level) {
	case "", "error":
		base = 0
	case "warn", "warning":
		base = 1
	case "info":
		base = 2
	case "debug":
		base = 3
	default:
		if l, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err == nil {
			for i, known := range levels {
				if known == l {
					base = i
				}
			}
		}
	}
	base += c.Verbosity
	if base < 0 {
		base = 0
	}
	if base >= len(levels) {
		base = len(levels) - 1
	}
	return levels[base]
}
