package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENWEATHER_BASE_URL", "WATCHER_BATCH_LIMIT", "WATCHER_MIN_AGE", "WATCHER_REQUEST_TIMEOUT",
		"WATCHER_CELL_PRECISION", "WATCHER_CONCURRENCY", "LOG_LEVEL", "DRY_RUN",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/waterwatch")
	t.Setenv("OPENWEATHER_API_KEY", "key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.BatchLimit)
	assert.Equal(t, time.Hour, cfg.MinAge)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.CellPrecision)
	assert.False(t, cfg.DryRun)
}

func TestLoadRequiresDatabaseAndKey(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	setRequired(t)
	t.Setenv("OPENWEATHER_API_KEY", " ")
	_, err = Load()
	assert.ErrorContains(t, err, "OPENWEATHER_API_KEY")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("WATCHER_BATCH_LIMIT", "50")
	t.Setenv("WATCHER_MIN_AGE", "3h")
	t.Setenv("WATCHER_CELL_PRECISION", "3")
	t.Setenv("DRY_RUN", "TRUE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.BatchLimit)
	assert.Equal(t, 3*time.Hour, cfg.MinAge)
	assert.Equal(t, 3, cfg.CellPrecision)
	assert.True(t, cfg.DryRun)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for key, value := range map[string]string{
		"WATCHER_BATCH_LIMIT":    "0",
		"WATCHER_MIN_AGE":        "yesterday",
		"WATCHER_CELL_PRECISION": "9",
		"WATCHER_CONCURRENCY":    "-1",
		"LOG_LEVEL":              "chatty",
	} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
