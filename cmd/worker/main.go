// Package main provides the entrypoint for the skywatch scheduler worker:
// it sweeps hot locations on a fixed interval, refreshing their air-quality
// snapshot and re-evaluating subscriber alerts, and listens on Pub/Sub for
// on-demand refresh triggers.
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
	"github.com/skywatch/skywatch/internal/cache"
	"github.com/skywatch/skywatch/internal/config"
	"github.com/skywatch/skywatch/internal/database"
	"github.com/skywatch/skywatch/internal/featureflags"
	"github.com/skywatch/skywatch/internal/forecast"
	"github.com/skywatch/skywatch/internal/provider/resilience"
	"github.com/skywatch/skywatch/internal/pushbus"
	"github.com/skywatch/skywatch/internal/scheduler"
	"github.com/skywatch/skywatch/internal/subscription"
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
		Str("service", "skywatch-scheduler").
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting skywatch scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})

	providers := resilience.NewRegistry()

	satellite := upstream.NewSatelliteClient(upstream.SatelliteClientConfig{
		BaseURL: cfg.Upstream.SatelliteBaseURL, Flags: ffService, Registry: providers, Logger: log,
	})
	groundA := upstream.NewGroundClientA(upstream.GroundClientAConfig{
		BaseURL: cfg.Upstream.GroundABaseURL, Flags: ffService, Registry: providers, Logger: log,
	})
	groundB := upstream.NewGroundClientB(upstream.GroundClientBConfig{
		BaseURL: cfg.Upstream.GroundBBaseURL, Flags: ffService, Registry: providers, Logger: log,
	})
	weather := upstream.NewWeatherClient(upstream.WeatherClientConfig{
		BaseURL: cfg.Upstream.WeatherBaseURL, Flags: ffService, Registry: providers, Logger: log,
	})

	subscriptions := subscription.NewRegistry()
	recentLocations := scheduler.NewRecentLocations()
	pushHub := pushbus.NewHub(log)
	dispatcher := alert.NewDispatcher(alert.Config{
		Cooldown:    cfg.Alert.Cooldown,
		Push:        pushHub,
		HistorySink: alert.NewPostgresHistorySink(pool),
		Store:       subscriptions,
		Logger:      log,
	})

	sched := scheduler.New(scheduler.Config{
		Interval:        cfg.Scheduler.Interval,
		Concurrency:     cfg.Scheduler.Concurrency,
		FetchTimeout:    cfg.Scheduler.FetchTimeout,
		ShutdownTimeout: cfg.Scheduler.ShutdownTimeout,
		HorizonHours:    cfg.Scheduler.HorizonHours,
		Subscriptions:   subscriptions,
		RecentLocations: recentLocations,
		Satellite:       satellite,
		GroundA:         groundA,
		GroundB:         groundB,
		Weather:         weather,
		ForecastEngine:  forecast.NewEngine(forecast.Config{}),
		Dispatcher:      dispatcher,
		PushBus:         pushHub,
		SnapshotCache:   cache.New[string, *airquality.Snapshot](10 * time.Minute),
		Flags:           ffService,
		Logger:          log,
	})

	sched.Start(ctx)
	log.Info().Dur("interval", cfg.Scheduler.Interval).Int("concurrency", cfg.Scheduler.Concurrency).Msg("scheduler started")

	var trigger *scheduler.PubSubTrigger
	if cfg.Scheduler.PubSubProjectID != "" {
		trigger, err = scheduler.NewPubSubTrigger(ctx, scheduler.PubSubTriggerConfig{
			ProjectID:        cfg.Scheduler.PubSubProjectID,
			SubscriptionName: cfg.Scheduler.PubSubSubName,
			Scheduler:        sched,
			Logger:           log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize pub/sub trigger, continuing without it")
		} else {
			go func() {
				if err := trigger.Listen(ctx); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("pub/sub listen stopped")
				}
			}()
			log.Info().Str("subscription", cfg.Scheduler.PubSubSubName).Msg("listening for refresh triggers")
		}
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - on-demand refresh triggers disabled")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","version":"` + Version + `"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down scheduler")
	cancel()
	sched.Stop()
	if trigger != nil {
		_ = trigger.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("scheduler stopped")
}
