package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skywatch/skywatch/internal/airquality"
	"github.com/skywatch/skywatch/internal/api/models"
	"github.com/skywatch/skywatch/internal/api/response"
	"github.com/skywatch/skywatch/internal/cache"
	"github.com/skywatch/skywatch/internal/feature"
	"github.com/skywatch/skywatch/internal/forecast"
	"github.com/skywatch/skywatch/internal/scheduler"
	"github.com/skywatch/skywatch/internal/upstream"
	"github.com/skywatch/skywatch/pkg/geo"
)

// WeatherFetcher is the narrow capability ForecastHandler needs from
// upstream.WeatherClient.
type WeatherFetcher interface {
	Fetch(ctx context.Context, q upstream.Query) (*upstream.Observation, error)
}

// ForecastHandler serves projected pollutant and AQI trajectories, backed by
// the same fan-out/canonicalize pipeline as AirQualityHandler plus a
// ForecastEngine pass.
type ForecastHandler struct {
	Satellite     SatelliteFetcher
	GroundA       GroundFetcher
	GroundB       GroundFetcher
	Weather       WeatherFetcher
	Canonicalizer *airquality.Canonicalizer
	Engine          *forecast.Engine
	SnapshotCache   *cache.Cache[string, *airquality.Snapshot]
	RecentLocations *scheduler.RecentLocations
	Logger          zerolog.Logger
}

const defaultHorizonHours = 24

// Forecast handles GET /v1/forecast?lat=&lng=&horizonHours=.
func (h *ForecastHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	f, ok := h.generate(w, r)
	if !ok {
		return
	}

	resp := models.ForecastResponse{
		Lat:             f.Location.Lat,
		Lng:             f.Location.Lng,
		HorizonHours:    f.HorizonHours,
		GeneratedAt:     models.Timestamp(f.GeneratedAt),
		PerPollutant:    make(map[string][]models.HourPrediction, len(f.PerPollutant)),
		Confidence:      make(map[string][]models.ConfidenceBand, len(f.Confidence)),
		Alerts:          toAlertModels(f.Alerts),
		Recommendations: toRecommendationModels(f.Recommendations),
		DataSources:     toDataSourcesModel(f.DataSources),
	}
	for p, preds := range f.PerPollutant {
		resp.PerPollutant[string(p)] = toHourPredictionModels(preds)
	}
	for p, bands := range f.Confidence {
		resp.Confidence[string(p)] = toConfidenceBandModels(bands)
	}
	resp.AQI = toAQIPredictionModels(f.AQI)

	response.JSON(w, r, http.StatusOK, resp)
}

// PollutantForecast handles GET /v1/forecast/pollutant?lat=&lng=&pollutant=&horizonHours=.
func (h *ForecastHandler) PollutantForecast(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("pollutant")
	pollutant, ok := airquality.NormalizePollutant(raw)
	if !ok {
		response.BadRequest(w, r, "invalid or missing query parameter \"pollutant\"", nil)
		return
	}

	f, ok := h.generate(w, r)
	if !ok {
		return
	}

	resp := models.PollutantForecastResponse{
		Lat:          f.Location.Lat,
		Lng:          f.Location.Lng,
		Pollutant:    string(pollutant),
		HorizonHours: f.HorizonHours,
		GeneratedAt:  models.Timestamp(f.GeneratedAt),
		Predictions:  toHourPredictionModels(f.PerPollutant[pollutant]),
		Confidence:   toConfidenceBandModels(f.Confidence[pollutant]),
		DataSources:  toDataSourcesModel(f.DataSources),
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// AQIForecast handles GET /v1/forecast/aqi?lat=&lng=&horizonHours=.
func (h *ForecastHandler) AQIForecast(w http.ResponseWriter, r *http.Request) {
	f, ok := h.generate(w, r)
	if !ok {
		return
	}

	resp := models.AQIForecastResponse{
		Lat:             f.Location.Lat,
		Lng:             f.Location.Lng,
		HorizonHours:    f.HorizonHours,
		GeneratedAt:     models.Timestamp(f.GeneratedAt),
		AQI:             toAQIPredictionModels(f.AQI),
		Alerts:          toAlertModels(f.Alerts),
		Recommendations: toRecommendationModels(f.Recommendations),
		Summary:         summarizeAQITrend(toAQIPredictionModels(f.AQI)),
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// generate parses the request, runs the fetch/canonicalize/assemble/project
// pipeline, and writes an error response itself on failure (ok=false).
func (h *ForecastHandler) generate(w http.ResponseWriter, r *http.Request) (*forecast.Forecast, bool) {
	lat, err := parseFloatParam(r, "lat")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return nil, false
	}
	lng, err := parseFloatParam(r, "lng")
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return nil, false
	}
	horizonHours, err := parseIntParamDefault(r, "horizonHours", defaultHorizonHours)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return nil, false
	}

	q := upstream.Query{Lat: lat, Lng: lng, RadiusKm: 25, HorizonHours: horizonHours}
	if verr := q.Validate(); verr != nil {
		response.BadRequest(w, r, verr.Error(), nil)
		return nil, false
	}

	now := time.Now()
	loc := geo.Point{Lat: lat, Lng: lng}

	compute := func(ctx context.Context) (*airquality.Snapshot, error) {
		return h.fetchSnapshot(ctx, q, loc), nil
	}
	var snapshot *airquality.Snapshot
	if h.SnapshotCache != nil {
		snapshot, _ = h.SnapshotCache.GetOrCompute(r.Context(), q.CacheKey(), compute)
	} else {
		snapshot, _ = compute(r.Context())
	}

	// Weather is fetched fresh every request: it is cheap relative to the
	// satellite/ground fan-out and the feature matrix needs current wind and
	// pressure, not a value coalesced from an earlier request.
	var obs *upstream.Observation
	if o, err := h.Weather.Fetch(r.Context(), q); err == nil {
		obs = o
	}

	sources := forecast.DataSources{Ground: forecast.SourceUnavailable, Satellite: forecast.SourceUnavailable, Weather: forecast.SourceUnavailable}
	for _, src := range snapshot.Sources {
		switch src {
		case "satellite":
			sources.Satellite = forecast.SourceAvailable
		case "ground-a", "ground-b":
			sources.Ground = forecast.SourceAvailable
		}
	}
	if obs != nil {
		sources.Weather = forecast.SourceAvailable
	}

	if h.RecentLocations != nil {
		h.RecentLocations.Touch(loc, now)
	}

	matrix := feature.Assemble(snapshot, obs, now)
	f := h.Engine.Generate(loc, horizonHours, snapshot, matrix, sources, now)
	return f, true
}

// fetchSnapshot fans out to the satellite and ground providers concurrently
// and canonicalizes their payloads into a single Snapshot.
func (h *ForecastHandler) fetchSnapshot(ctx context.Context, q upstream.Query, loc geo.Point) *airquality.Snapshot {
	var satellite, groundA, groundB *airquality.ProviderPayload

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := h.Satellite.Fetch(gctx, q)
		if err == nil {
			satellite = p
		}
		return nil
	})
	g.Go(func() error {
		p, err := h.GroundA.Fetch(gctx, q)
		if err == nil {
			groundA = p
		}
		return nil
	})
	g.Go(func() error {
		p, err := h.GroundB.Fetch(gctx, q)
		if err == nil {
			groundB = p
		}
		return nil
	})
	_ = g.Wait()

	return h.Canonicalizer.Canonicalize(loc, time.Now(), satellite, groundA, groundB)
}

func summarizeAQITrend(trajectory []models.AQIPrediction) models.AQIForecastSummary {
	if len(trajectory) == 0 {
		return models.AQIForecastSummary{Trend: models.TrendStable}
	}

	first := trajectory[0]
	last := trajectory[len(trajectory)-1]

	peak := first.AQI
	worstHour := first.Hour
	sum := 0
	for _, p := range trajectory {
		sum += p.AQI
		if p.AQI > peak {
			peak = p.AQI
			worstHour = p.Hour
		}
	}

	trend := models.TrendStable
	switch diff := last.AQI - first.AQI; {
	case diff > 10:
		trend = models.TrendIncreasing
	case diff < -10:
		trend = models.TrendDecreasing
	}

	return models.AQIForecastSummary{
		Current:   first.AQI,
		Peak:      peak,
		Average:   float64(sum) / float64(len(trajectory)),
		Trend:     trend,
		WorstHour: worstHour,
	}
}

func toHourPredictionModels(preds []forecast.HourPrediction) []models.HourPrediction {
	out := make([]models.HourPrediction, 0, len(preds))
	for _, p := range preds {
		out = append(out, models.HourPrediction{
			Hour:          p.Hour,
			Concentration: p.Concentration,
			At:            models.Timestamp(p.At),
			Method:        p.Method,
		})
	}
	return out
}

func toConfidenceBandModels(bands []forecast.Band) []models.ConfidenceBand {
	out := make([]models.ConfidenceBand, 0, len(bands))
	for _, b := range bands {
		out = append(out, models.ConfidenceBand{
			Hour:       b.Hour,
			Lower:      b.Lower,
			Upper:      b.Upper,
			Confidence: b.Confidence,
		})
	}
	return out
}

func toAQIPredictionModels(preds []forecast.AqiPrediction) []models.AQIPrediction {
	out := make([]models.AQIPrediction, 0, len(preds))
	for _, p := range preds {
		out = append(out, models.AQIPrediction{
			Hour:  p.Hour,
			AQI:   p.AQI,
			Level: string(p.Level),
			At:    models.Timestamp(p.At),
		})
	}
	return out
}

func toAlertModels(alerts []forecast.Alert) []models.Alert {
	out := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, models.Alert{
			Type:          a.Type,
			Pollutant:     string(a.Pollutant),
			HoursUntil:    a.HoursUntil,
			AQI:           a.AQI,
			Concentration: a.Concentration,
			At:            models.Timestamp(a.At),
		})
	}
	return out
}

func toRecommendationModels(recs []forecast.Recommendation) []models.Recommendation {
	out := make([]models.Recommendation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.Recommendation{
			Hour:    rec.Hour,
			Level:   string(rec.Level),
			Message: rec.Message,
			At:      models.Timestamp(rec.At),
		})
	}
	return out
}

func toDataSourcesModel(s forecast.DataSources) models.DataSources {
	return models.DataSources{Satellite: s.Satellite, Ground: s.Ground, Weather: s.Weather}
}
