// ABOUTME: Tests for config path resolution and logger setup in the parley command
// ABOUTME: Exercises the color and JSON handlers against an in-memory writer

package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/config"
)

func TestGetConfigPath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("PARLEY_CONFIG", "/env/parley.yaml")
		assert.Equal(t, "/flag/parley.toml", getConfigPath("/flag/parley.toml"))
	})

	t.Run("env var", func(t *testing.T) {
		t.Setenv("PARLEY_CONFIG", "/env/parley.yaml")
		assert.Equal(t, "/env/parley.yaml", getConfigPath(""))
	})

	t.Run("xdg config home", func(t *testing.T) {
		t.Setenv("PARLEY_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		assert.Equal(t, filepath.Join("/xdg", "parley", "parley.yaml"), getConfigPath(""))
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.Debug("hidden")
	logger.With("component", "session").Info("identity online", "identity", "alice")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "identity online", record["msg"])
	assert.Equal(t, "session", record["component"])
	assert.Equal(t, "alice", record["identity"])
}

func TestNewLogger_Color(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("hidden")
	logger.With("component", "presence").WithGroup("peer").Warn("send failed", "identity", "bob")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN send failed")
	assert.Contains(t, out, " component=presence")
	assert.Contains(t, out, "peer.identity=bob")
}

func TestDescribeDatabase(t *testing.T) {
	assert.Equal(t, "sqlite /tmp/p.db", describeDatabase(config.DatabaseConfig{Driver: config.DriverSQLite, Path: "/tmp/p.db"}))
	assert.Equal(t, "postgres", describeDatabase(config.DatabaseConfig{Driver: config.DriverPostgres, DSN: "postgres://u:secret@h/db"}))
}

func TestYes(t *testing.T) {
	assert.True(t, yes("y"))
	assert.True(t, yes("YES"))
	assert.False(t, yes("no"))
	assert.False(t, yes(""))
}
