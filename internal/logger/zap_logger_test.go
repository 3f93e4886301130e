package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	l.Info("cache", "hit", map[string]interface{}{"issue": 42})
	l.Error("synthesis", "provider failed", map[string]interface{}{"error": errors.New("boom")})
	l.Warn("evidence", "degraded", nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "hit", entries[0].Message)
	assert.Equal(t, "cache", entries[0].ContextMap()["module"])

	errCtx := entries[1].ContextMap()
	assert.Equal(t, "boom", errCtx["error"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

func TestNewZapLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.log")
	l := NewZapLogger(path, true)
	l.Info("test", "hello", nil)
	_ = l.Sync()

	assert.FileExists(t, path)
}

func TestNewNop(t *testing.T) {
	var l Logger = NewNop()
	l.Debug("x", "y", nil)
	assert.NoError(t, l.Sync())
}
