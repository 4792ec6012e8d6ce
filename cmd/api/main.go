// Package main provides the entrypoint for the skywatch API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/skywatch/skywatch/internal/airquality"
	"github.com/skywatch/skywatch/internal/alert"
	"github.com/skywatch/skywatch/internal/api"
	"github.com/skywatch/skywatch/internal/api/handler"
	"github.com/skywatch/skywatch/internal/api/middleware"
	"github.com/skywatch/skywatch/internal/cache"
	"github.com/skywatch/skywatch/internal/config"
	"github.com/skywatch/skywatch/internal/database"
	"github.com/skywatch/skywatch/internal/featureflags"
	"github.com/skywatch/skywatch/internal/forecast"
	"github.com/skywatch/skywatch/internal/provider/resilience"
	"github.com/skywatch/skywatch/internal/pushbus"
	"github.com/skywatch/skywatch/internal/scheduler"
	"github.com/skywatch/skywatch/internal/subscription"
	"github.com/skywatch/skywatch/internal/telemetry"
	"github.com/skywatch/skywatch/internal/upstream"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		bootLog := zerolog.New(os.Stdout)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting skywatch API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})
	log.Info().Msg("feature flags service initialized")

	providers := resilience.NewRegistry()

	satelliteClient := registerUpstream(providers, "satellite", 30*time.Second)
	satellite := upstream.NewSatelliteClient(upstream.SatelliteClientConfig{
		BaseURL: cfg.Upstream.SatelliteBaseURL, HTTP: satelliteClient, Flags: ffService, Registry: providers, Logger: log,
	})

	groundAClient := registerUpstream(providers, "ground-a", 15*time.Second)
	groundA := upstream.NewGroundClientA(upstream.GroundClientAConfig{
		BaseURL: cfg.Upstream.GroundABaseURL, HTTP: groundAClient, Flags: ffService, Registry: providers, Logger: log,
	})

	groundBClient := registerUpstream(providers, "ground-b", 15*time.Second)
	groundB := upstream.NewGroundClientB(upstream.GroundClientBConfig{
		BaseURL: cfg.Upstream.GroundBBaseURL, HTTP: groundBClient, Flags: ffService, Registry: providers, Logger: log,
	})

	weatherClient := registerUpstream(providers, "weather", 15*time.Second)
	weather := upstream.NewWeatherClient(upstream.WeatherClientConfig{
		BaseURL: cfg.Upstream.WeatherBaseURL, HTTP: weatherClient, Flags: ffService, Registry: providers, Logger: log,
	})
	log.Info().Msg("upstream clients initialized")

	canon := airquality.NewCanonicalizer()
	engine := forecast.NewEngine(forecast.Config{})
	snapshotCache := cache.New[string, *airquality.Snapshot](10 * time.Minute)
	recentLocations := scheduler.NewRecentLocations()
	subscriptions := subscription.NewRegistry()
	pushHub := pushbus.NewHub(log)

	dispatcher := alert.NewDispatcher(alert.Config{
		Cooldown:    cfg.Alert.Cooldown,
		Push:        pushHub,
		HistorySink: alert.NewPostgresHistorySink(pool),
		Store:       subscriptions,
		Logger:      log,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        cfg.ServiceName,
		Metrics:            metrics,
		Providers:          providers,
		FeatureFlagService: ffService,
		AirQuality: &handler.AirQualityHandler{
			Satellite:       satellite,
			GroundA:         groundA,
			GroundB:         groundB,
			Canonicalizer:   canon,
			SnapshotCache:   snapshotCache,
			RecentLocations: recentLocations,
			Logger:          log,
		},
		Forecast: &handler.ForecastHandler{
			Satellite:       satellite,
			GroundA:         groundA,
			GroundB:         groundB,
			Weather:         weather,
			Canonicalizer:   canon,
			Engine:          engine,
			SnapshotCache:   snapshotCache,
			RecentLocations: recentLocations,
			Logger:          log,
		},
		Subscription: &handler.SubscriptionHandler{
			Registry:   subscriptions,
			Dispatcher: dispatcher,
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// registerUpstream builds a resilience.Client for an upstream provider and
// registers it with the shared Registry so /v1/ops/providers and the
// readiness check can see its circuit state.
func registerUpstream(registry *resilience.Registry, name string, timeout time.Duration) *resilience.Client {
	client := resilience.NewClient(resilience.ClientConfig{Name: name, Timeout: timeout})
	registry.Register(name, client)
	return client
}
