package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		want          zapcore.Level
	}{
		{"", FormatJSON, zapcore.InfoLevel},
		{"debug", FormatConsole, zapcore.DebugLevel},
		{"warn", "", zapcore.WarnLevel},
		{"ERROR", FormatJSON, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		log, err := New(tt.level, tt.format)
		require.NoError(t, err, "level %q", tt.level)
		assert.True(t, log.Core().Enabled(tt.want))
		assert.False(t, log.Core().Enabled(tt.want-1))
	}
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New("loud", FormatJSON)
	assert.Error(t, err)
}
