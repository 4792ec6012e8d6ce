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

// GroundClientB fetches community/low-cost sensor measurements from an
// OpenAQ-style aggregator. TTL 10m, timeout 15s, deterministic-mock
// fallback per spec's per-client defaults table.
type GroundClientB struct {
	baseClient
	baseURL string
}

// GroundClientBConfig configures a GroundClientB.
type GroundClientBConfig struct {
	BaseURL  string
	HTTP     HTTPDoer
	Flags    *featureflags.Service
	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// NewGroundClientB constructs a GroundClientB wired through the shared
// resilience layer.
func NewGroundClientB(cfg GroundClientBConfig) *GroundClientB {
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:    "ground-b",
			Timeout: 15 * time.Second,
		})
	}

	return &GroundClientB{
		baseClient: baseClient{
			name:       "ground-b",
			http:       httpClient,
			ttl:        10 * time.Minute,
			timeout:    15 * time.Second,
			fallback:   FallbackMock,
			pollutants: []airquality.Pollutant{aqi.PM25, aqi.PM10, aqi.NO2, aqi.O3},
			flags:      cfg.Flags,
			registry:   cfg.Registry,
			logger:     cfg.Logger,
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

type groundBResponse struct {
	Results []groundBResult `json:"results"`
}

type groundBResult struct {
	Location       string  `json:"location"`
	Parameter      string  `json:"parameter"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit"`
	LastUpdated    string  `json:"lastUpdated"`
	Coordinates    struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// Fetch implements the Upstream Client capability interface.
func (c *GroundClientB) Fetch(ctx context.Context, q Query) (*airquality.ProviderPayload, error) {
	now := time.Now()
	return c.fetchWithFallback(ctx, q, now, func(fetchCtx context.Context) (*airquality.ProviderPayload, error) {
		return c.fetchLive(fetchCtx, q)
	})
}

// MockFetch returns the deterministic fallback payload.
func (c *GroundClientB) MockFetch(q Query) *airquality.ProviderPayload {
	return mockPayload(q, c.pollutants, c.name, time.Now())
}

func (c *GroundClientB) fetchLive(ctx context.Context, q Query) (*airquality.ProviderPayload, error) {
	url := fmt.Sprintf("%s/measurements?coordinates=%f,%f&radius=%f", c.baseURL, q.Lat, q.Lng, q.RadiusKm*1000)
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

	var parsed groundBResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	measurements := make([]airquality.Measurement, 0, len(parsed.Results))
	stationSeen := make(map[string]bool)
	var stations []airquality.Station
	for _, r := range parsed.Results {
		p, ok := airquality.NormalizePollutant(r.Parameter)
		if !ok {
			continue
		}
		observedAt, _ := time.Parse(time.RFC3339, r.LastUpdated)
		measurements = append(measurements, airquality.Measurement{
			Pollutant:      p,
			Concentration:  r.Value,
			Unit:           r.Unit,
			Source:         c.name,
			StationID:      r.Location,
			DistanceMeters: r.DistanceMeters,
			ObservedAt:     observedAt,
		})
		if !stationSeen[r.Location] {
			stationSeen[r.Location] = true
			stations = append(stations, airquality.Station{
				ID: r.Location, Source: c.name, Name: r.Location,
				Lat: r.Coordinates.Latitude, Lng: r.Coordinates.Longitude,
				DistanceMeters: r.DistanceMeters,
			})
		}
	}

	return &airquality.ProviderPayload{Source: c.name, Measurements: measurements, Stations: stations}, nil
}
