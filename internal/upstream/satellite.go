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

// SatelliteClient fetches column-density pollutant estimates from a
// satellite data product (Sentinel-5P/TROPOMI-shaped). TTL 15m, timeout 30s,
// deterministic-mock fallback per spec's per-client defaults table.
type SatelliteClient struct {
	baseClient
	baseURL string
}

// SatelliteClientConfig configures a SatelliteClient.
type SatelliteClientConfig struct {
	BaseURL  string
	HTTP     HTTPDoer
	Flags    *featureflags.Service
	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// NewSatelliteClient constructs a SatelliteClient wired through the shared
// resilience layer.
func NewSatelliteClient(cfg SatelliteClientConfig) *SatelliteClient {
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:    "satellite",
			Timeout: 30 * time.Second,
		})
	}

	return &SatelliteClient{
		baseClient: baseClient{
			name:       "satellite",
			http:       httpClient,
			ttl:        15 * time.Minute,
			timeout:    30 * time.Second,
			fallback:   FallbackMock,
			pollutants: []airquality.Pollutant{aqi.NO2, aqi.O3, aqi.SO2, aqi.HCHO, aqi.CO},
			flags:      cfg.Flags,
			registry:   cfg.Registry,
			logger:     cfg.Logger,
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

type satelliteResponse struct {
	Columns []satelliteColumn `json:"columns"`
}

type satelliteColumn struct {
	Species        string  `json:"species"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit"`
	ObservedAt     string  `json:"observedAt"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// Fetch implements the Upstream Client capability interface.
func (c *SatelliteClient) Fetch(ctx context.Context, q Query) (*airquality.ProviderPayload, error) {
	now := time.Now()
	return c.fetchWithFallback(ctx, q, now, func(fetchCtx context.Context) (*airquality.ProviderPayload, error) {
		return c.fetchLive(fetchCtx, q)
	})
}

// MockFetch returns the deterministic fallback payload directly, used by
// tests and by callers that want to bypass the live path entirely.
func (c *SatelliteClient) MockFetch(q Query) *airquality.ProviderPayload {
	return mockPayload(q, c.pollutants, c.name, time.Now())
}

func (c *SatelliteClient) fetchLive(ctx context.Context, q Query) (*airquality.ProviderPayload, error) {
	url := fmt.Sprintf("%s/columns?lat=%f&lng=%f", c.baseURL, q.Lat, q.Lng)
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

	var parsed satelliteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	measurements := make([]airquality.Measurement, 0, len(parsed.Columns))
	for _, col := range parsed.Columns {
		p, ok := airquality.NormalizePollutant(col.Species)
		if !ok {
			continue
		}
		observedAt, _ := time.Parse(time.RFC3339, col.ObservedAt)
		measurements = append(measurements, airquality.Measurement{
			Pollutant:      p,
			Concentration:  col.Value,
			Unit:           col.Unit,
			Source:         c.name,
			DistanceMeters: col.DistanceMeters,
			ObservedAt:     observedAt,
		})
	}

	return &airquality.ProviderPayload{Source: c.name, Measurements: measurements}, nil
}
