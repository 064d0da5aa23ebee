package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := NewLogger("natkin", level)
		require.NoError(t, err, level)
		want, _ := zapcore.ParseLevel(level)
		assert.True(t, logger.Desugar().Core().Enabled(want))
		assert.False(t, logger.Desugar().Core().Enabled(want-1))
	}

	_, err := NewLogger("natkin", "chatty")
	assert.Error(t, err)
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Debugw("segment registered", "segment", "thigh")
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "segment registered", entry.Message)
	assert.Equal(t, "thigh", entry.ContextMap()["segment"])

	NewNopLogger().Errorw("dropped")
}
