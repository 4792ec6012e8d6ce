package airquality_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/skywatch/internal/airquality"
	"github.com/skywatch/skywatch/internal/aqi"
	"github.com/skywatch/skywatch/pkg/geo"
)

func TestCanonicalize_EmptyInputYieldsEmptySnapshot(t *testing.T) {
	c := airquality.NewCanonicalizer()
	loc := geo.Point{Lat: 52.37, Lng: 4.89}
	now := time.Now()

	snap := c.Canonicalize(loc, now, nil, nil, nil)

	require.NotNil(t, snap)
	assert.Empty(t, snap.Pollutants)
	assert.Equal(t, 0, snap.AQI)
	assert.Equal(t, aqi.LevelGood, snap.Level)
	assert.Equal(t, airquality.ConfidenceLow, snap.DataQuality.Confidence)
}

// S3 — Canonicalizer prefers nearer station.
func TestCanonicalize_S3_PrefersNearerStation(t *testing.T) {
	c := airquality.NewCanonicalizer()
	loc := geo.Point{Lat: 52.37, Lng: 4.89}
	now := time.Now()

	groundA := &airquality.ProviderPayload{
		Source: "EPA-style",
		Measurements: []Measurement{
			{Pollutant: aqi.PM25, Concentration: 15, Unit: "μg/m³", Source: "EPA-style", DistanceMeters: 8000, ObservedAt: now},
		},
	}
	groundB := &airquality.ProviderPayload{
		Source: "OpenAQ",
		Measurements: []Measurement{
			{Pollutant: aqi.PM25, Concentration: 22, Unit: "μg/m³", Source: "OpenAQ", DistanceMeters: 2000, ObservedAt: now},
		},
	}

	snap := c.Canonicalize(loc, now, nil, groundA, groundB)

	m, ok := snap.Pollutants[aqi.PM25]
	require.True(t, ok)
	assert.Equal(t, 22.0, m.Concentration)
	assert.Equal(t, "OpenAQ", m.Source)
	assert.Equal(t, 72, snap.AQI)
}

func TestCanonicalize_TieBreakPrefersNewerObservation(t *testing.T) {
	c := airquality.NewCanonicalizer()
	loc := geo.Point{}
	now := time.Now()

	older := now.Add(-time.Hour)

	groundA := &airquality.ProviderPayload{
		Source: "zeta",
		Measurements: []Measurement{
			{Pollutant: aqi.NO2, Concentration: 10, DistanceMeters: 1000, ObservedAt: older, Source: "zeta"},
		},
	}
	groundB := &airquality.ProviderPayload{
		Source: "alpha",
		Measurements: []Measurement{
			{Pollutant: aqi.NO2, Concentration: 20, DistanceMeters: 1000, ObservedAt: now, Source: "alpha"},
		},
	}

	snap := c.Canonicalize(loc, now, nil, groundA, groundB)
	m := snap.Pollutants[aqi.NO2]
	assert.Equal(t, "alpha", m.Source, "newer observation should win when distance ties")
}

// Invariant 4: snapshot.aqi == max over p of AQI(p, concentration).
func TestCanonicalize_Invariant4_AQIIsMax(t *testing.T) {
	c := airquality.NewCanonicalizer()
	loc := geo.Point{}
	now := time.Now()

	groundA := &airquality.ProviderPayload{
		Source: "EPA-style",
		Measurements: []Measurement{
			{Pollutant: aqi.NO2, Concentration: 30, DistanceMeters: 100, ObservedAt: now, Source: "EPA-style"},
			{Pollutant: aqi.PM25, Concentration: 100, DistanceMeters: 100, ObservedAt: now, Source: "EPA-style"},
		},
	}

	snap := c.Canonicalize(loc, now, nil, groundA, nil)

	want := 0
	for p, m := range snap.Pollutants {
		if v := aqi.AQI(p, m.Concentration); v > want {
			want = v
		}
	}
	assert.Equal(t, want, snap.AQI)
}

// Invariant 8: canonicalize(canonicalize(raw)) == canonicalize(raw) when
// re-fed as a single source.
func TestCanonicalize_Invariant8_Idempotent(t *testing.T) {
	c := airquality.NewCanonicalizer()
	loc := geo.Point{Lat: 1, Lng: 2}
	now := time.Now()

	groundA := &airquality.ProviderPayload{
		Source: "EPA-style",
		Measurements: []Measurement{
			{Pollutant: aqi.PM25, Concentration: 42, DistanceMeters: 500, ObservedAt: now, Source: "EPA-style"},
		},
		Stations: []Station{{ID: "s1", Source: "EPA-style", Lat: 1, Lng: 2}},
	}

	first := c.Canonicalize(loc, now, nil, groundA, nil)

	refed := &airquality.ProviderPayload{
		Source:       "EPA-style",
		Measurements: measurementSlice(first),
		Stations:     first.Stations,
	}
	second := c.Canonicalize(loc, now, nil, refed, nil)

	assert.Equal(t, first.AQI, second.AQI)
	assert.Equal(t, first.Pollutants, second.Pollutants)
}

type Measurement = airquality.Measurement
type Station = airquality.Station

func measurementSlice(s *airquality.Snapshot) []Measurement {
	out := make([]Measurement, 0, len(s.Pollutants))
	for _, m := range s.Pollutants {
		out = append(out, m)
	}
	return out
}
