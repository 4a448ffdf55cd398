package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/jwulff/sensorlog/internal/sensor"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingOptionalFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, 5*time.Second, cfg.Countdown)
	assert.Equal(t, sensor.RateUI, cfg.SampleRate())
}

func TestLoadMissingRequiredFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), true)
	assert.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
db_path: /var/lib/sensorlog/db.sqlite
export_dir: ~/exports
countdown: 3s
rate: fastest
source: stream
stream_addr: 192.168.1.20:8765
log_level: debug
`)
	cfg, err := Load(path, true)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, "/var/lib/sensorlog/db.sqlite", cfg.DBPath)
	assert.Equal(t, filepath.Join(home, "exports"), cfg.ExportDir)
	assert.Equal(t, 3*time.Second, cfg.Countdown)
	assert.Equal(t, sensor.RateFastest, cfg.SampleRate())
	assert.Equal(t, SourceStream, cfg.Source)
	assert.Equal(t, Defaults().PrefsPath, cfg.PrefsPath, "unset keys keep defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "rate: game\ncountdown: 3s\n")
	t.Setenv("SENSORLOG_RATE", "normal")
	t.Setenv("SENSORLOG_COUNTDOWN", "1s")
	t.Setenv("SENSORLOG_DB_PATH", "/tmp/env.sqlite")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, sensor.RateNormal, cfg.SampleRate())
	assert.Equal(t, time.Second, cfg.Countdown)
	assert.Equal(t, "/tmp/env.sqlite", cfg.DBPath)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "rate: [unterminated"), true)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Rate = "ludicrous"
	cfg.Source = "bluetooth"
	cfg.Countdown = -time.Second
	cfg.LogLevel = "chatty"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(unwrapOnce(err)), 4)

	cfg = Defaults()
	cfg.Source = SourceStream
	assert.ErrorContains(t, cfg.Validate(), "stream_addr")

	cfg.StreamAddr = "/tmp/phone.sock"
	assert.NoError(t, cfg.Validate())
}

func unwrapOnce(err error) error {
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return u.Unwrap()
	}
	return err
}
