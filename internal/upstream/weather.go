package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skywatch/skywatch/internal/featureflags"
	"github.com/skywatch/skywatch/internal/provider/resilience"
)

// Observation is the WeatherClient's output: the scalar weather readings
// the FeatureAssembler consumes.
type Observation struct {
	TemperatureC  float64
	HumidityPct   float64
	WindSpeedMs   float64
	PressureHpa   float64
	CloudCoverPct float64
	ObservedAt    time.Time
}

// WeatherClient fetches current weather conditions. TTL 30m, timeout 15s.
// On failure it falls back to null: the forecast proceeds without weather
// rather than inventing one, per spec's per-client defaults table.
type WeatherClient struct {
	name     string
	http     HTTPDoer
	baseURL  string
	ttl      time.Duration
	timeout  time.Duration
	flags    *featureflags.Service
	registry *resilience.Registry
	logger   zerolog.Logger
}

// WeatherClientConfig configures a WeatherClient.
type WeatherClientConfig struct {
	BaseURL  string
	HTTP     HTTPDoer
	Flags    *featureflags.Service
	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// NewWeatherClient constructs a WeatherClient wired through the shared
// resilience layer.
func NewWeatherClient(cfg WeatherClientConfig) *WeatherClient {
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:    "weather",
			Timeout: 15 * time.Second,
		})
	}

	return &WeatherClient{
		name:     "weather",
		http:     httpClient,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		ttl:      30 * time.Minute,
		timeout:  15 * time.Second,
		flags:    cfg.Flags,
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}
}

// Name identifies the provider for caching and health reporting.
func (c *WeatherClient) Name() string { return c.name }

// TTL is the cache TTL weather observations should be stored under.
func (c *WeatherClient) TTL() time.Duration { return c.ttl }

type weatherResponse struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Pressure    float64 `json:"pressure"`
	CloudCover  float64 `json:"cloudCover"`
}

// Fetch implements the WeatherClient's Fetch(ctx, query) contract. It never
// returns ErrFallbackMock: weather has no deterministic-mock fallback, only
// null, so a failed fetch yields (nil, nil).
func (c *WeatherClient) Fetch(ctx context.Context, q Query) (*Observation, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	obs, err := c.fetchLive(fetchCtx, q)
	if err != nil {
		if c.registry != nil {
			c.registry.RecordFailure(c.name, err)
		}
		c.logger.Warn().Err(err).Str("provider", c.name).Msg("weather fetch failed, proceeding without weather")
		return nil, nil
	}

	if c.registry != nil {
		c.registry.RecordSuccess(c.name)
	}
	return obs, nil
}

// MockFetch returns a deterministic synthetic observation, used for tests
// and local development without a live provider.
func (c *WeatherClient) MockFetch(q Query) *Observation {
	rng := rand.New(rand.NewSource(seedFor(q.Lat, q.Lng, "weather"))) //nolint:gosec // deterministic fixture
	now := time.Now()
	return &Observation{
		TemperatureC:  15 + rng.Float64()*10,
		HumidityPct:   40 + rng.Float64()*30,
		WindSpeedMs:   1 + rng.Float64()*6,
		PressureHpa:   1000 + rng.Float64()*30,
		CloudCoverPct: rng.Float64() * 100,
		ObservedAt:    now,
	}
}

func (c *WeatherClient) fetchLive(ctx context.Context, q Query) (*Observation, error) {
	url := fmt.Sprintf("%s/current?lat=%f&lng=%f", c.baseURL, q.Lat, q.Lng)
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

	var parsed weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Observation{
		TemperatureC:  parsed.Temperature,
		HumidityPct:   parsed.Humidity,
		WindSpeedMs:   math.Max(0, parsed.WindSpeed),
		PressureHpa:   parsed.Pressure,
		CloudCoverPct: parsed.CloudCover,
		ObservedAt:    time.Now(),
	}, nil
}
