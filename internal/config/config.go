// Package config consolidates every environment-driven setting the service
// needs at startup, following the teacher's internal/database ConfigFromEnv
// + getEnvOrDefault convention.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/skywatch/skywatch/internal/database"
)

// AppConfig is the top-level configuration loaded once at process startup.
type AppConfig struct {
	ServiceName string
	Environment string
	HTTPPort    string

	Telemetry TelemetryConfig
	Database  database.Config
	Scheduler SchedulerConfig
	Upstream  UpstreamConfig
	Alert     AlertConfig
}

// TelemetryConfig configures the OpenTelemetry exporter.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

// SchedulerConfig configures the Scheduler's cadence and pool size.
type SchedulerConfig struct {
	Interval        time.Duration
	Concurrency     int
	FetchTimeout    time.Duration
	ShutdownTimeout time.Duration
	HorizonHours    int
	PubSubProjectID string
	PubSubSubName   string
}

// UpstreamConfig carries the base URLs and API keys the four Upstream
// Clients need. MockFallback is loaded from UPSTREAM_MOCK_FALLBACK but no
// Upstream Client reads it; mock fallback permission is governed only by the
// mock_fallback_disabled feature flag.
type UpstreamConfig struct {
	SatelliteBaseURL string
	SatelliteAPIKey  string
	GroundABaseURL   string
	GroundAAPIKey    string
	GroundBBaseURL   string
	GroundBAPIKey    string
	WeatherBaseURL   string
	WeatherAPIKey    string
	MockFallback     bool
}

// AlertConfig configures the AlertDispatcher's cooldown.
type AlertConfig struct {
	Cooldown time.Duration
}

// FromEnv loads AppConfig from the process environment. Fields without an
// environment override fall back to the defaults below.
func FromEnv() (AppConfig, error) {
	httpPort := getEnvOrDefault("APP_PORT", "8080")
	env := getEnvOrDefault("APP_ENV", "development")

	schedulerInterval, err := time.ParseDuration(getEnvOrDefault("SCHEDULER_INTERVAL", "15m"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("parsing SCHEDULER_INTERVAL: %w", err)
	}
	fetchTimeout, err := time.ParseDuration(getEnvOrDefault("SCHEDULER_FETCH_TIMEOUT", "30s"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("parsing SCHEDULER_FETCH_TIMEOUT: %w", err)
	}
	shutdownTimeout, err := time.ParseDuration(getEnvOrDefault("SCHEDULER_SHUTDOWN_TIMEOUT", "30s"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("parsing SCHEDULER_SHUTDOWN_TIMEOUT: %w", err)
	}
	concurrency, err := strconv.Atoi(getEnvOrDefault("SCHEDULER_CONCURRENCY", "3"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("parsing SCHEDULER_CONCURRENCY: %w", err)
	}
	horizonHours, err := strconv.Atoi(getEnvOrDefault("FORECAST_HORIZON_HOURS", "24"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("parsing FORECAST_HORIZON_HOURS: %w", err)
	}

	alertCooldown, err := time.ParseDuration(getEnvOrDefault("ALERT_COOLDOWN", "1h"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("parsing ALERT_COOLDOWN: %w", err)
	}

	return AppConfig{
		ServiceName: "skywatch-api",
		Environment: env,
		HTTPPort:    httpPort,
		Telemetry: TelemetryConfig{
			Enabled:      getEnvOrDefault("OTEL_ENABLED", "false") == "true",
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
		Database: database.ConfigFromEnv(),
		Scheduler: SchedulerConfig{
			Interval:        schedulerInterval,
			Concurrency:     concurrency,
			FetchTimeout:    fetchTimeout,
			ShutdownTimeout: shutdownTimeout,
			HorizonHours:    horizonHours,
			PubSubProjectID: getEnvOrDefault("PUBSUB_PROJECT_ID", ""),
			PubSubSubName:   getEnvOrDefault("PUBSUB_SCHEDULER_SUBSCRIPTION", "scheduler-trigger"),
		},
		Upstream: UpstreamConfig{
			SatelliteBaseURL: getEnvOrDefault("SATELLITE_BASE_URL", ""),
			SatelliteAPIKey:  os.Getenv("SATELLITE_API_KEY"),
			GroundABaseURL:   getEnvOrDefault("GROUND_A_BASE_URL", ""),
			GroundAAPIKey:    os.Getenv("GROUND_A_API_KEY"),
			GroundBBaseURL:   getEnvOrDefault("GROUND_B_BASE_URL", ""),
			GroundBAPIKey:    os.Getenv("GROUND_B_API_KEY"),
			WeatherBaseURL:   getEnvOrDefault("WEATHER_BASE_URL", ""),
			WeatherAPIKey:    os.Getenv("WEATHER_API_KEY"),
			MockFallback:     getEnvOrDefault("UPSTREAM_MOCK_FALLBACK", "true") == "true",
		},
		Alert: AlertConfig{Cooldown: alertCooldown},
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
