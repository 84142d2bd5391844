package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		env   string
		debug bool
		want  zerolog.Level
	}{
		{"production", false, zerolog.InfoLevel},
		{"development", false, zerolog.DebugLevel},
		{"production", true, zerolog.DebugLevel},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := SetupWithWriter(tt.env, tt.debug, &buf)
		assert.Equal(t, tt.want, logger.GetLevel(), "%s debug=%t", tt.env, tt.debug)
	}
}

func TestSetupWritesConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", false, &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Str("track", "Ember").Msg("playing")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "playing")
	assert.Contains(t, out, "track=")
}
