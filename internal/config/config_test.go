package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 3, cfg.Detect.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Detect.RetryBackoff.Std())
	assert.Equal(t, 5, cfg.Collections.MinDateGroup)
	assert.Equal(t, 3, cfg.Collections.MinPersonGroup)
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, "detect:\n  retry_backoff: 500ms\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Detect.RetryBackoff.Std())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "detect:\n  retry_backoff: soon\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse duration")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ML_SERVER_PORT", "7070")
	t.Setenv("ML_API_KEY", "sekrit")

	path := writeConfig(t, "server:\n  port: 9090\n  api_key: from-file\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sekrit", cfg.Server.APIKey)
}

func TestDatabaseDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, Name: "media", User: "app", Password: "pw"}
	assert.Equal(t, "postgres://app:pw@db:5432/media?sslmode=disable", db.DSN())
}
