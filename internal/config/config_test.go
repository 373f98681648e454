package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "catalog/reference.db", cfg.Catalog.Path)
	assert.Equal(t, "dag/main.yml", cfg.DAG.Path)
	assert.Equal(t, "dag/archive.yml", cfg.DAG.ArchivePath)
	assert.Equal(t, "steps", cfg.DAG.StepsDir)
	assert.Equal(t, "snapshots", cfg.DAG.SnapshotDir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "country", cfg.Pipeline.CountryColumn)
	assert.Equal(t, "year", cfg.Pipeline.YearColumn)
	assert.Equal(t, 8, cfg.Origins.MaxConcurrency)
	assert.InDelta(t, 2.0, cfg.Origins.RatePerSec, 1e-9)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ETL_LOG_LEVEL", "debug")
	t.Setenv("ETL_SERVER_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level", Format: "json"})
	assert.Error(t, err)
}
