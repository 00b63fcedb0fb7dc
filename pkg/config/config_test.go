package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/nanopressure/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, -80, cfg.MinRSSI)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "pressure.txt", cfg.Filename)
	assert.Equal(t, "text", cfg.Format)
	assert.Nil(t, cfg.Interval)
	assert.False(t, cfg.Overwrite)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	// GOAL: Verify a YAML file overrides defaults and leaves unset keys alone
	//
	// TEST SCENARIO: File sets rssi, timeout, interval and format → other fields keep defaults

	path := testutils.WriteTempFile(t, "nanopressure.yaml", `
rssi: -70
timeout: 12s
interval: 0
format: jsonl
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, -70, cfg.MinRSSI)
	assert.Equal(t, 12*time.Second, cfg.Timeout)
	require.NotNil(t, cfg.Interval)
	assert.Equal(t, uint32(0), *cfg.Interval)
	assert.Equal(t, "jsonl", cfg.Format)
	assert.Equal(t, "pressure.txt", cfg.Filename)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown key", content: "mode: scan\n"},
		{name: "bad duration", content: "timeout: soon\n"},
		{name: "bad format", content: "format: csv\n"},
		{name: "bad level", content: "log_level: loud\n"},
		{name: "zero timeout", content: "timeout: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(testutils.WriteTempFile(t, "c.yaml", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load("/nonexistent/nanopressure.yaml")
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(testutils.WriteTempFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLevelForVerbosity(t *testing.T) {
	assert.Equal(t, logrus.ErrorLevel, LevelForVerbosity(0))
	assert.Equal(t, logrus.WarnLevel, LevelForVerbosity(1))
	assert.Equal(t, logrus.InfoLevel, LevelForVerbosity(2))
	assert.Equal(t, logrus.DebugLevel, LevelForVerbosity(3))
	assert.Equal(t, logrus.DebugLevel, LevelForVerbosity(7))
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "debug", logLevel: "debug", want: logrus.DebugLevel},
		{name: "warn", logLevel: "warn", want: logrus.WarnLevel},
		{name: "invalid falls back to error", logLevel: "loud", want: logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := (&Config{LogLevel: tt.logLevel}).NewLogger()
			assert.Equal(t, tt.want, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
