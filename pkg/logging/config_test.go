package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		verbosity int
		expected  zerolog.Level
	}{
		{name: "default is error", expected: zerolog.ErrorLevel},
		{name: "explicit error", level: "error", expected: zerolog.ErrorLevel},
		{name: "warn", level: "warn", expected: zerolog.WarnLevel},
		{name: "warning alias", level: "warning", expected: zerolog.WarnLevel},
		{name: "info", level: "info", expected: zerolog.InfoLevel},
		{name: "debug", level: "debug", expected: zerolog.DebugLevel},
		{name: "mixed case", level: "INFO", expected: zerolog.InfoLevel},
		{name: "one v from default", verbosity: 1, expected: zerolog.WarnLevel},
		{name: "two v from default", verbosity: 2, expected: zerolog.InfoLevel},
		{name: "three v from default", verbosity: 3, expected: zerolog.DebugLevel},
		{name: "verbosity clamps at debug", verbosity: 10, expected: zerolog.DebugLevel},
		{name: "verbosity on top of info", level: "info", verbosity: 1, expected: zerolog.DebugLevel},
		{name: "negative verbosity clamps at error", level: "info", verbosity: -5, expected: zerolog.ErrorLevel},
		{name: "unknown level falls back to error", level: "bogus", expected: zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Level: tt.level, Verbosity: tt.verbosity}
			assert.Equal(t, tt.expected, cfg.ResolveLevel())
		})
	}
}
