package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Zero fields take the values in
// their default tags; a YAML file may set any of them and CLI flags win
// over both.
type Config struct {
	LogLevel string        `yaml:"log_level" default:"error"`
	Address  string        `yaml:"address"`
	MinRSSI  int           `yaml:"rssi" default:"-80"`
	Timeout  time.Duration `yaml:"timeout" default:"5s"`
	Profile  string        `yaml:"profile"`
	Interval *uint32       `yaml:"interval"`

	Newline bool `yaml:"newline"`
	Color   bool `yaml:"color"`

	Filename  string `yaml:"filename" default:"pressure.txt"`
	Overwrite bool   `yaml:"overwrite"`
	Format    string `yaml:"format" default:"text"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file on top of the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values a file or flags could get wrong.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Format != "text" && c.Format != "jsonl" {
		return fmt.Errorf("invalid output format %q (want text or jsonl)", c.Format)
	}
	return nil
}

// Level returns the parsed log level, falling back to error.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.ErrorLevel
	}
	return level
}

// LevelForVerbosity maps a -v count to a level: 0 error, 1 warn, 2 info, 3+ debug.
func LevelForVerbosity(v int) logrus.Level {
	switch {
	case v <= 0:
		return logrus.ErrorLevel
	case v == 1:
		return logrus.WarnLevel
	case v == 2:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// NewLogger creates a configured logger instance writing to stderr,
// so stdout stays free for readings.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
