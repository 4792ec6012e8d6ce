package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skywatch/skywatch/internal/airquality"
	"github.com/skywatch/skywatch/internal/aqi"
	"github.com/skywatch/skywatch/internal/featureflags"
	"github.com/skywatch/skywatch/internal/provider/resilience"
)

// GroundClientA fetches regulatory ground-station measurements from an
// EPA-style network. TTL 10m, timeout 15s; on failure it falls back to
// *null* (skipped in merge), not a mock — regulatory station gaps are
// treated as genuinely missing rather than synthesized.
type GroundClientA struct {
	baseClient
	baseURL string
}

// GroundClientAConfig configures a GroundClientA.
type GroundClientAConfig struct {
	BaseURL  string
	HTTP     HTTPDoer
	Flags    *featureflags.Service
	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// NewGroundClientA constructs a GroundClientA wired through the shared
// resilience layer.
func NewGroundClientA(cfg GroundClientAConfig) *GroundClientA {
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:    "ground-a",
			Timeout: 15 * time.Second,
		})
	}

	return &GroundClientA{
		baseClient: baseClient{
			name:       "ground-a",
			http:       httpClient,
			ttl:        10 * time.Minute,
			timeout:    15 * time.Second,
			fallback:   FallbackNull,
			pollutants: []airquality.Pollutant{aqi.PM25, aqi.PM10, aqi.NO2, aqi.O3, aqi.SO2, aqi.CO},
			flags:      cfg.Flags,
			registry:   cfg.Registry,
			logger:     cfg.Logger,
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

type groundAResponse struct {
	Stations []groundAStation `json:"stations"`
}

type groundAStation struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Lat            float64            `json:"lat"`
	Lng            float64            `json:"lng"`
	DistanceMeters float64            `json:"distanceMeters"`
	Readings       []groundAReading   `json:"readings"`
}

type groundAReading struct {
	Parameter  string  `json:"parameter"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	ObservedAt string  `json:"observedAt"`
}

// Fetch implements the Upstream Client capability interface.
func (c *GroundClientA) Fetch(ctx context.Context, q Query) (*airquality.ProviderPayload, error) {
	now := time.Now()
	return c.fetchWithFallback(ctx, q, now, func(fetchCtx context.Context) (*airquality.ProviderPayload, error) {
		return c.fetchLive(fetchCtx, q)
	})
}

// MockFetch returns the deterministic fallback payload. GroundClientA's
// configured fallback is null, not mock; this method exists so tests and
// operators can inspect what a mock *would* look like independent of the
// client's wired fallback behavior.
func (c *GroundClientA) MockFetch(q Query) *airquality.ProviderPayload {
	return mockPayload(q, c.pollutants, c.name, time.Now())
}

func (c *GroundClientA) fetchLive(ctx context.Context, q Query) (*airquality.ProviderPayload, error) {
	url := fmt.Sprintf("%s/stations/nearby?lat=%f&lng=%f&radiusKm=%f", c.baseURL, q.Lat, q.Lng, q.RadiusKm)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed groundAResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var measurements []airquality.Measurement
	stations := make([]airquality.Station, 0, len(parsed.Stations))
	for _, s := range parsed.Stations {
		stations = append(stations, airquality.Station{
			ID: s.ID, Source: c.name, Name: s.Name, Lat: s.Lat, Lng: s.Lng, DistanceMeters: s.DistanceMeters,
		})
		for _, r := range s.Readings {
			p, ok := airquality.NormalizePollutant(r.Parameter)
			if !ok {
				continue
			}
			observedAt, _ := time.Parse(time.RFC3339, r.ObservedAt)
			measurements = append(measurements, airquality.Measurement{
				Pollutant:      p,
				Concentration:  r.Value,
				Unit:           r.Unit,
				Source:         c.name,
				StationID:      s.ID,
				DistanceMeters: s.DistanceMeters,
				ObservedAt:     observedAt,
			})
		}
	}

	return &airquality.ProviderPayload{Source: c.name, Measurements: measurements, Stations: stations}, nil
}
