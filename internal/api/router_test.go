package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/skywatch/skywatch/internal/api"
	"github.com/skywatch/skywatch/internal/api/handler"
	"github.com/skywatch/skywatch/internal/featureflags"
	"github.com/skywatch/skywatch/internal/subscription"
)

func newTestRouter() http.Handler {
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
	})

	return api.NewRouter(api.RouterConfig{
		Version:            "test",
		BuildTime:          "test",
		Logger:             zerolog.Nop(),
		FeatureFlagService: flags,
		AirQuality:         &handler.AirQualityHandler{Logger: zerolog.Nop()},
		Forecast:           &handler.ForecastHandler{Logger: zerolog.Nop()},
		Subscription:       &handler.SubscriptionHandler{Registry: subscription.NewRegistry()},
	})
}

func TestRouter_HealthCheck(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ReadinessCheck_NoProvidersConfigured(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AirQualityCurrent_MissingParams(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/air-quality/current", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Forecast_MissingParams(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/forecast", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Unsubscribe(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/sub-1", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouter_FeatureFlagsList(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/flags", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
