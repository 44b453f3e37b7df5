package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		l, err := New(level)
		require.NoError(t, err, level)
		require.NotNil(t, l, level)
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	l, err := New("verbose")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNop(t *testing.T) {
	l := Nop()
	require.NotNil(t, l)
	l.Info("discarded")
}
