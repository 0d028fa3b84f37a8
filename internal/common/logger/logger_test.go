package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestBuild(t *testing.T) {
	l, err := Build(Options{Level: "warn", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestZapAdapter_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).With(map[string]interface{}{"worker": "salesforce.sessions.revoke"})

	log.Warn("Failed to revoke session", map[string]interface{}{
		"sessionId": "0Ak000000000001",
		"error":     errors.New("boom"),
	})

	entries := logs.FilterMessage("Failed to revoke session").All()
	require.Len(t, entries, 1)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "salesforce.sessions.revoke", ctx["worker"])
	assert.Equal(t, "0Ak000000000001", ctx["sessionId"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestWithError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewZapAdapter(zap.New(core)).WithError(errors.New("redis down")).Error("audit failed", nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "redis down", logs.All()[0].ContextMap()["error"])
}
