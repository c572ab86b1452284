package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		wantLvl zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"WARNING", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"unknown", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.wantLvl, ParseLevel(tt.level))

			for _, json := range []bool{true, false} {
				l, err := New(tt.level, json)
				require.NoError(t, err)
				assert.True(t, l.Core().Enabled(tt.wantLvl))
				if tt.wantLvl > zapcore.DebugLevel {
					assert.False(t, l.Core().Enabled(tt.wantLvl-1))
				}
			}
		})
	}
}

func TestGlobalSetGlobal(t *testing.T) {
	original := Global()
	require.NotNil(t, original)

	core, obs := observer.New(zapcore.InfoLevel)
	SetGlobal(zap.New(core))
	defer SetGlobal(original)

	Named("orchestrator").Info("stage started", zap.String("stage", "stage 1"))

	entries := obs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "stage started", entries[0].Message)
	assert.Equal(t, "orchestrator", entries[0].LoggerName)
	assert.Equal(t, "stage 1", entries[0].ContextMap()["stage"])
}

func TestSetGlobalNil(t *testing.T) {
	original := Global()
	defer SetGlobal(original)

	SetGlobal(nil)
	assert.NotNil(t, Global())
	Sync()
}
