package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Granularity is the spatial resolution of persisted output.
type Granularity string

const (
	GranularityGrid     Granularity = "grid"
	GranularityCity     Granularity = "city"
	GranularityProvince Granularity = "province"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	RawDir        string
	ProcessedDir  string
	AggregatedDir string
	OutputDir     string

	ArchivePrefix string
	Granularity   Granularity
	AdminBoundary string
	AllowLatin    bool
	Workers       int
	TaskTimeout   time.Duration

	OutputFormat     string
	AggregateMean    bool
	SkipIQR          bool
	IQRK             float64
	GroupCeiling     int
	MaxInMemoryBytes int64
	PureMemory       bool
	AllowDiskFall    bool
	CleanupManifest  string

	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	workers, err := parsePositiveInt("WORKERS", 4)
	if err != nil {
		return nil, err
	}
	groupCeiling, err := parsePositiveInt("GROUP_CEILING", 150000)
	if err != nil {
		return nil, err
	}
	iqrK, err := parsePositiveFloat("IQR_K", 1.5)
	if err != nil {
		return nil, err
	}
	maxInMem, err := parseByteSize("MAX_IN_MEMORY_BYTES", 300*1024*1024)
	if err != nil {
		return nil, err
	}
	taskTimeout, err := parseTimeout("TASK_TIMEOUT")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RawDir:        envOrDefault("RAW_DIR", "resources/raw"),
		ProcessedDir:  envOrDefault("PROCESSED_DIR", "resources/processed"),
		AggregatedDir: envOrDefault("AGGREGATED_DIR", "resources/aggregated"),
		OutputDir:     envOrDefault("OUTPUT_DIR", "resources/output"),

		ArchivePrefix: envOrDefault("ARCHIVE_PREFIX", "CN-Reanalysis"),
		Granularity:   Granularity(envOrDefault("GRANULARITY", "grid")),
		AdminBoundary: os.Getenv("ADMIN_BOUNDARY_PATH"),
		AllowLatin:    envBool("ALLOW_LATIN_FALLBACK", true),
		Workers:       workers,
		TaskTimeout:   taskTimeout,

		OutputFormat:     envOrDefault("OUTPUT_FORMAT", "parquet"),
		AggregateMean:    envBool("AGGREGATE_MEAN", true),
		SkipIQR:          envBool("SKIP_IQR", false),
		IQRK:             iqrK,
		GroupCeiling:     groupCeiling,
		MaxInMemoryBytes: maxInMem,
		PureMemory:       envBool("PURE_MEMORY", false),
		AllowDiskFall:    envBool("ALLOW_DISK_FALLBACK", true),
		CleanupManifest:  envOrDefault("TMP_CLEANUP_MANIFEST", "tmp_dirs_to_cleanup.json"),

		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("LOG_FORMAT", "json"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}

	switch cfg.Granularity {
	case GranularityGrid, GranularityCity, GranularityProvince:
	default:
		return nil, fmt.Errorf("invalid GRANULARITY %q: must be grid, city or province", cfg.Granularity)
	}

	switch cfg.OutputFormat {
	case "parquet", "csv":
	default:
		return nil, fmt.Errorf("invalid OUTPUT_FORMAT %q: must be parquet or csv", cfg.OutputFormat)
	}

	// Administrative mapping needs the boundary file up front; silently
	// downgrading a city/province run to grid output is never what the
	// operator wanted, so its absence is a startup error.
	if cfg.Granularity != GranularityGrid {
		if cfg.AdminBoundary == "" {
			return nil, errors.New("GRANULARITY is " + string(cfg.Granularity) + " but ADMIN_BOUNDARY_PATH is not set")
		}
		if _, err := os.Stat(cfg.AdminBoundary); err != nil {
			return nil, fmt.Errorf("ADMIN_BOUNDARY_PATH: %w", err)
		}
	}

	// Pure-memory mode forbids every disk write, including the fallback path.
	if cfg.PureMemory {
		cfg.AllowDiskFall = false
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return def
	}
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func parseByteSize(key string, def int64) (int64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseTimeout(key string) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}
