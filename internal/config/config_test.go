package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerisview/reanalysis-etl/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "resources/raw", cfg.RawDir)
	assert.Equal(t, "CN-Reanalysis", cfg.ArchivePrefix)
	assert.Equal(t, config.GranularityGrid, cfg.Granularity)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 150000, cfg.GroupCeiling)
	assert.Equal(t, 1.5, cfg.IQRK)
	assert.Equal(t, int64(300*1024*1024), cfg.MaxInMemoryBytes)
	assert.True(t, cfg.AggregateMean)
	assert.False(t, cfg.SkipIQR)
	assert.False(t, cfg.PureMemory)
	assert.True(t, cfg.AllowDiskFall)
	assert.Equal(t, time.Duration(0), cfg.TaskTimeout)
	assert.Equal(t, "tmp_dirs_to_cleanup.json", cfg.CleanupManifest)
	assert.Equal(t, "parquet", cfg.OutputFormat)
	assert.True(t, cfg.AllowLatin)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_LatinFallbackCanBeDisabled(t *testing.T) {
	t.Setenv("ALLOW_LATIN_FALLBACK", "false")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.AllowLatin)
}

func TestLoad_OutputFormat(t *testing.T) {
	t.Setenv("OUTPUT_FORMAT", "csv")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.OutputFormat)

	t.Setenv("OUTPUT_FORMAT", "feather")
	_, err = config.Load()
	assert.ErrorContains(t, err, "OUTPUT_FORMAT")
}

func TestLoad_InvalidGranularity(t *testing.T) {
	t.Setenv("GRANULARITY", "county")
	_, err := config.Load()
	assert.ErrorContains(t, err, "GRANULARITY")
}

func TestLoad_AdminGranularityRequiresBoundary(t *testing.T) {
	t.Setenv("GRANULARITY", "city")
	_, err := config.Load()
	assert.ErrorContains(t, err, "ADMIN_BOUNDARY_PATH")

	t.Setenv("ADMIN_BOUNDARY_PATH", filepath.Join(t.TempDir(), "missing.geojson"))
	_, err = config.Load()
	assert.ErrorContains(t, err, "ADMIN_BOUNDARY_PATH")
}

func TestLoad_AdminGranularityWithBoundary(t *testing.T) {
	boundary := filepath.Join(t.TempDir(), "admin.geojson")
	require.NoError(t, os.WriteFile(boundary, []byte("{}"), 0o644))

	t.Setenv("GRANULARITY", "province")
	t.Setenv("ADMIN_BOUNDARY_PATH", boundary)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.GranularityProvince, cfg.Granularity)
	assert.Equal(t, boundary, cfg.AdminBoundary)
}

func TestLoad_PureMemoryDisablesDiskFallback(t *testing.T) {
	t.Setenv("PURE_MEMORY", "true")
	t.Setenv("ALLOW_DISK_FALLBACK", "true")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.PureMemory)
	assert.False(t, cfg.AllowDiskFall)
}

func TestLoad_InvalidNumerics(t *testing.T) {
	cases := map[string]string{
		"WORKERS":             "zero",
		"GROUP_CEILING":       "-5",
		"IQR_K":               "0",
		"MAX_IN_MEMORY_BYTES": "lots",
		"TASK_TIMEOUT":        "5 parsecs",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := config.Load()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoad_TaskTimeout(t *testing.T) {
	t.Setenv("TASK_TIMEOUT", "90s")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.TaskTimeout)
}
