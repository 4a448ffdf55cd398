package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sensorlog.log")
	logger, closeLog, err := New(Options{Path: path, Level: "debug"})
	require.NoError(t, err)

	logger.Debug("armed", zap.Int("kinds", 2))
	logger.Info("recording")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "armed")
	assert.Contains(t, out, SessionID())
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestNewRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensorlog.log")
	logger, closeLog, err := New(Options{Path: path, Level: "warn"})
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, _, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewWithoutOutputs(t *testing.T) {
	logger, closeLog, err := New(Options{})
	require.NoError(t, err)
	logger.Info("nowhere")
	assert.NoError(t, closeLog())
}

func TestSessionIDIsStable(t *testing.T) {
	assert.Equal(t, SessionID(), SessionID())
	assert.Len(t, SessionID(), 36)
}
