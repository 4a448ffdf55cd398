// Package config loads sensorlog settings from an optional YAML file
// overlaid by SENSORLOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/jwulff/sensorlog/internal/capture"
	"github.com/jwulff/sensorlog/internal/sensor"
)

// Source names.
const (
	SourceSimulated = "simulated"
	SourceStream    = "stream"
)

// Config holds every setting. Empty paths are filled by Defaults.
type Config struct {
	DBPath     string        `yaml:"db_path" env:"SENSORLOG_DB_PATH"`
	PrefsPath  string        `yaml:"prefs_path" env:"SENSORLOG_PREFS_PATH"`
	ExportDir  string        `yaml:"export_dir" env:"SENSORLOG_EXPORT_DIR"`
	LogPath    string        `yaml:"log_path" env:"SENSORLOG_LOG_PATH"`
	LogLevel   string        `yaml:"log_level" env:"SENSORLOG_LOG_LEVEL"`
	Countdown  time.Duration `yaml:"countdown" env:"SENSORLOG_COUNTDOWN"`
	Rate       string        `yaml:"rate" env:"SENSORLOG_RATE"`
	Source     string        `yaml:"source" env:"SENSORLOG_SOURCE"`
	StreamAddr string        `yaml:"stream_addr" env:"SENSORLOG_STREAM_ADDR"`
}

// Dir returns the sensorlog config directory.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "sensorlog")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	dir := Dir()
	return Config{
		DBPath:    filepath.Join(dir, "sensorlog.sqlite"),
		PrefsPath: filepath.Join(dir, "prefs.yaml"),
		ExportDir: filepath.Join(home, "SensorLog_Data"),
		LogPath:   filepath.Join(dir, "sensorlog.log"),
		LogLevel:  "info",
		Countdown: capture.DefaultCountdown,
		Rate:      sensor.RateUI.String(),
		Source:    SourceSimulated,
	}
}

// Load reads path over the defaults, then applies the environment. A
// missing file is only an error when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.expand()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) expand() {
	for _, p := range []*string{&c.DBPath, &c.PrefsPath, &c.ExportDir, &c.LogPath} {
		*p = expandHome(*p)
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

// Validate checks enumerated fields and required paths, reporting every
// problem at once.
func (c Config) Validate() error {
	var err error
	if c.DBPath == "" {
		err = multierr.Append(err, errors.New("db_path is required"))
	}
	if c.ExportDir == "" {
		err = multierr.Append(err, errors.New("export_dir is required"))
	}
	if c.Countdown < 0 {
		err = multierr.Append(err, fmt.Errorf("countdown must not be negative, got %s", c.Countdown))
	}
	if _, perr := sensor.ParseRate(c.Rate); perr != nil {
		err = multierr.Append(err, perr)
	}
	if _, perr := zapcore.ParseLevel(c.LogLevel); perr != nil {
		err = multierr.Append(err, fmt.Errorf("log_level: %w", perr))
	}
	switch c.Source {
	case SourceSimulated:
	case SourceStream:
		if c.StreamAddr == "" {
			err = multierr.Append(err, errors.New("stream_addr is required for the stream source"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown source %q", c.Source))
	}
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SampleRate returns the parsed rate. Call after Validate.
func (c Config) SampleRate() sensor.Rate {
	r, err := sensor.ParseRate(c.Rate)
	if err != nil {
		return sensor.RateUI
	}
	return r
}
