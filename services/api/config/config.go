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
	defaultWaterDataURL   = "https://water-watch-58265eebffd9.herokuapp.com/getwaterdata/?only_underwater=25&sort_by=deviceDatetime"
	defaultPageSize       = 1000
	defaultRequestTimeout = 30 * time.Second
	defaultTolerance      = 120 * time.Minute
	defaultAlphaScale     = 100
	defaultCenterLat      = 43.69
	defaultCenterLon      = -79.385
	defaultBucket         = "waterwatch"
)

var defaultDeviceIDs = []string{"0000000077de649d", "000000002133dded"}

// Config holds environment-driven settings for the dashboard API.
type Config struct {
	Port        int
	BearerToken string
	LogLevel    slog.Level

	// DatabaseURL enables the record API when set.
	DatabaseURL string

	WaterDataURL   string
	DeviceIDs      []string
	PageSize       int
	RequestTimeout time.Duration

	// Tolerance bounds alignment when Bounded is true.
	Tolerance  time.Duration
	Bounded    bool
	AlphaScale float64

	WeatherAPIKey  string
	WeatherBaseURL string
	WeatherKeyURL  string
	CenterLat      float64
	CenterLon      float64

	S3Bucket    string
	AWSRegion   string
	AWSAccessID string
	AWSKey      string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Port:           8080,
		LogLevel:       slog.LevelInfo,
		WaterDataURL:   defaultWaterDataURL,
		DeviceIDs:      defaultDeviceIDs,
		PageSize:       defaultPageSize,
		RequestTimeout: defaultRequestTimeout,
		Tolerance:      defaultTolerance,
		Bounded:        true,
		AlphaScale:     defaultAlphaScale,
		CenterLat:      defaultCenterLat,
		CenterLon:      defaultCenterLon,
		S3Bucket:       defaultBucket,
	}

	if portStr := env("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := env("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	if lvl := env("LOG_LEVEL"); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return cfg, fmt.Errorf("invalid LOG_LEVEL: %s", lvl)
		}
	}

	cfg.BearerToken = env("API_BEARER_TOKEN")
	cfg.DatabaseURL = env("DATABASE_URL")

	if u := env("WATERDATA_URL"); u != "" {
		cfg.WaterDataURL = u
	}

	if ids := env("WATERDATA_DEVICE_IDS"); ids != "" {
		cfg.DeviceIDs = splitList(ids)
		if len(cfg.DeviceIDs) == 0 {
			return cfg, errors.New("WATERDATA_DEVICE_IDS has no device ids")
		}
	}

	if v := env("WATERDATA_PAGE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return cfg, fmt.Errorf("invalid WATERDATA_PAGE_SIZE: %s", v)
		}
		cfg.PageSize = size
	}

	if v := env("WATERDATA_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid WATERDATA_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	if v := env("ALIGN_TOLERANCE"); v != "" {
		switch strings.ToLower(v) {
		case "none", "off":
			cfg.Bounded = false
			cfg.Tolerance = 0
		default:
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				return cfg, fmt.Errorf("invalid ALIGN_TOLERANCE: %s", v)
			}
			cfg.Tolerance = d
		}
	}

	if v := env("COLOR_ALPHA_SCALE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return cfg, fmt.Errorf("invalid COLOR_ALPHA_SCALE: %s", v)
		}
		cfg.AlphaScale = f
	}

	cfg.WeatherAPIKey = env("OPENWEATHER_API_KEY")
	cfg.WeatherBaseURL = env("OPENWEATHER_BASE_URL")
	cfg.WeatherKeyURL = env("WEATHER_KEY_URL")

	if v := env("AREA_CENTER_LAT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < -90 || f > 90 {
			return cfg, fmt.Errorf("invalid AREA_CENTER_LAT: %s", v)
		}
		cfg.CenterLat = f
	}
	if v := env("AREA_CENTER_LON"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < -180 || f > 180 {
			return cfg, fmt.Errorf("invalid AREA_CENTER_LON: %s", v)
		}
		cfg.CenterLon = f
	}

	if b := env("S3_BUCKET"); b != "" {
		cfg.S3Bucket = b
	}
	cfg.AWSRegion = env("AWS_REGION")
	cfg.AWSAccessID = env("AWS_ACCESS_ID")
	cfg.AWSKey = env("AWS_ACCESS_KEY")

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
