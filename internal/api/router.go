// Package api provides the HTTP API for skywatch.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/skywatch/skywatch/internal/api/handler"
	"github.com/skywatch/skywatch/internal/api/middleware"
	"github.com/skywatch/skywatch/internal/featureflags"
	"github.com/skywatch/skywatch/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version            string
	BuildTime          string
	Logger             zerolog.Logger
	ServiceName        string
	Metrics            *middleware.Metrics
	Providers          *resilience.Registry
	FeatureFlagService *featureflags.Service
	AirQuality         *handler.AirQualityHandler
	Forecast           *handler.ForecastHandler
	Subscription       *handler.SubscriptionHandler
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "skywatch-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Providers)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/providers", opsHandler.Providers)
		})

		// Current air quality - standard rate limiting
		r.With(standardRateLimit).Get("/air-quality/current", cfg.AirQuality.Current)

		// Forecasts - expensive compute, strict rate limiting
		r.Route("/forecast", func(r chi.Router) {
			r.Use(expensiveRateLimit)
			r.Get("/", cfg.Forecast.Forecast)
			r.Get("/pollutant", cfg.Forecast.PollutantForecast)
			r.Get("/aqi", cfg.Forecast.AQIForecast)
		})

		// Subscriptions - standard rate limiting
		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Post("/", cfg.Subscription.Subscribe)
			r.Route("/{subscriberId}", func(r chi.Router) {
				r.Delete("/", cfg.Subscription.Unsubscribe)
				r.Put("/prefs", cfg.Subscription.UpdatePrefs)
				r.Get("/history", cfg.Subscription.History)
				r.Post("/test", cfg.Subscription.Test)
			})
		})

		// Admin endpoints - feature flag management
		r.Route("/admin", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Route("/flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
