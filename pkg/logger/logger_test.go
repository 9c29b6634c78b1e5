package logger

import (
	"testing"

	"paes_math_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestLevelFor(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Mode = "release"
	assert.Equal(t, zapcore.InfoLevel, levelFor(cfg))

	cfg.Server.Mode = "debug"
	assert.Equal(t, zapcore.DebugLevel, levelFor(cfg))

	cfg.Log.Level = "warn"
	assert.Equal(t, zapcore.WarnLevel, levelFor(cfg))

	cfg.Log.Level = "nonsense"
	assert.Equal(t, zapcore.DebugLevel, levelFor(cfg))
}

func TestInitLoggerConsoleOnly(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Mode = "release"
	InitLogger(cfg)
	assert.NotNil(t, Log)
	assert.False(t, Log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, Log.Core().Enabled(zapcore.InfoLevel))
}
