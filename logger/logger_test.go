package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), "level %q", name)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "octave.log")
	log, err := New(Options{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	log.Debug("bootstrap started")
	log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"bootstrap started"`), "log file: %s", data)
}

func TestNewDevelopment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "octave.log")
	log, err := New(Options{Level: "info", File: path, Development: true})
	require.NoError(t, err)

	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel), "level still comes from Options")

	log.Warn("profile not saved")
	log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "WARN")
	assert.Contains(t, string(data), "profile not saved")
	assert.Contains(t, string(data), "TestNewDevelopment", "development config adds stack traces to warnings")
}

func TestNewRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "octave.log")
	log, err := New(Options{Level: "warn", File: path})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")
	log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}
