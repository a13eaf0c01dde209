package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultBatchLimit     = 200
	defaultMinAge         = time.Hour
	defaultRequestTimeout = 30 * time.Second
	defaultCellPrecision  = 2
	defaultConcurrency    = 4
)

// Config holds runtime configuration for the watcher service.
type Config struct {
	DatabaseURL    string
	WeatherAPIKey  string
	WeatherBaseURL string
	BatchLimit     int
	MinAge         time.Duration
	RequestTimeout time.Duration
	CellPrecision  int
	Concurrency    int
	LogLevel       slog.Level
	DryRun         bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{LogLevel: slog.LevelInfo}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	cfg.WeatherAPIKey = strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY"))
	if cfg.WeatherAPIKey == "" {
		return cfg, errors.New("OPENWEATHER_API_KEY is required")
	}
	cfg.WeatherBaseURL = strings.TrimSpace(os.Getenv("OPENWEATHER_BASE_URL"))

	cfg.BatchLimit = defaultBatchLimit
	if v := strings.TrimSpace(os.Getenv("WATCHER_BATCH_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid WATCHER_BATCH_LIMIT: %s", v)
		}
		cfg.BatchLimit = n
	}

	cfg.MinAge = defaultMinAge
	if v := strings.TrimSpace(os.Getenv("WATCHER_MIN_AGE")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid WATCHER_MIN_AGE: %w", err)
		}
		cfg.MinAge = d
	}

	cfg.RequestTimeout = defaultRequestTimeout
	if v := strings.TrimSpace(os.Getenv("WATCHER_REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid WATCHER_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	cfg.CellPrecision = defaultCellPrecision
	if v := strings.TrimSpace(os.Getenv("WATCHER_CELL_PRECISION")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 6 {
			return cfg, fmt.Errorf("invalid WATCHER_CELL_PRECISION: %s", v)
		}
		cfg.CellPrecision = n
	}

	cfg.Concurrency = defaultConcurrency
	if v := strings.TrimSpace(os.Getenv("WATCHER_CONCURRENCY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid WATCHER_CONCURRENCY: %s", v)
		}
		cfg.Concurrency = n
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return cfg, fmt.Errorf("invalid LOG_LEVEL: %s", v)
		}
	}

	dryRun := strings.TrimSpace(os.Getenv("DRY_RUN"))
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	return cfg, nil
}
