package upstream

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/skywatch/skywatch/internal/airquality"
	"github.com/skywatch/skywatch/internal/aqi"
	"github.com/skywatch/skywatch/pkg/geo"
)

// urbanCenters is a fixed list of city centers whose concentrations are
// scaled by an urban multiplier. A real deployment would source this from
// configuration; a handful of fixed points is enough to exercise the
// multiplier deterministically.
var urbanCenters = []geo.Point{
	{Lat: 40.7128, Lng: -74.0060},  // New York
	{Lat: 51.5074, Lng: -0.1278},   // London
	{Lat: 35.6762, Lng: 139.6503},  // Tokyo
	{Lat: 52.3676, Lng: 4.9041},    // Amsterdam
	{Lat: 37.7749, Lng: -122.4194}, // San Francisco
}

const urbanRadiusDegrees = 0.5

// urbanFactor returns the pollutant-specific scaling factor applied when the
// query falls within urbanRadiusDegrees of an urban center. Values sit in
// [0.8, 1.5] per spec: NOx and PM are elevated in cities; O3 is suppressed
// by NOx titration.
func urbanFactor(p airquality.Pollutant) float64 {
	switch p {
	case aqi.NO2:
		return 1.5
	case aqi.PM25:
		return 1.3
	case aqi.PM10:
		return 1.2
	case aqi.CO:
		return 1.4
	case aqi.SO2:
		return 1.1
	case aqi.HCHO:
		return 1.15
	case aqi.O3:
		return 0.8
	default:
		return 1.0
	}
}

// isUrban reports whether (lat, lng) is within the urban radius of any fixed
// city center.
func isUrban(lat, lng float64) bool {
	for _, c := range urbanCenters {
		if math.Abs(lat-c.Lat) <= urbanRadiusDegrees && math.Abs(lng-c.Lng) <= urbanRadiusDegrees {
			return true
		}
	}
	return false
}

// timeOfDayFactor keyed by local hour-of-day [0,23]: NO2 peaks at rush
// hours, O3 peaks midday, other pollutants vary mildly.
func timeOfDayFactor(p airquality.Pollutant, hour int) float64 {
	switch p {
	case aqi.NO2:
		if (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19) {
			return 1.4
		}
		return 0.9
	case aqi.O3:
		if hour >= 11 && hour <= 16 {
			return 1.3
		}
		return 0.85
	default:
		return 1.0 + 0.1*math.Sin(float64(hour)*math.Pi/12)
	}
}

// seedFor derives a deterministic PRNG seed from (lat rounded to 2dp, lng
// rounded to 2dp, pollutant) as required for idempotent mock fallback.
func seedFor(lat, lng float64, p airquality.Pollutant) int64 {
	latR := math.Round(lat*100) / 100
	lngR := math.Round(lng*100) / 100

	h := fnv.New64a()
	_, _ = h.Write([]byte{
		byte(int64(latR * 100)), byte(int64(latR*100) >> 8), byte(int64(latR*100) >> 16),
		byte(int64(lngR * 100)), byte(int64(lngR*100) >> 8), byte(int64(lngR*100) >> 16),
	})
	_, _ = h.Write([]byte(p))
	return int64(h.Sum64()) //nolint:gosec // deterministic seed, not security-sensitive
}

// mockMeasurement builds a deterministic mock Measurement for pollutant p at
// the query's location, per spec's urban + time-of-day multiplier rules.
func mockMeasurement(q Query, p airquality.Pollutant, source string, now time.Time) airquality.Measurement {
	rng := rand.New(rand.NewSource(seedFor(q.Lat, q.Lng, p))) //nolint:gosec // deterministic fixture, not crypto use
	base := airquality.BaseConcentration(p)

	jitter := 1 + (rng.Float64()*0.2 - 0.1) // +/-10%
	factor := jitter
	if isUrban(q.Lat, q.Lng) {
		factor *= urbanFactor(p)
	}
	factor *= timeOfDayFactor(p, now.Hour())

	concentration := math.Max(0, base*factor)

	return airquality.Measurement{
		Pollutant:      p,
		Concentration:  concentration,
		Unit:           aqi.CanonicalUnit(p),
		Source:         source,
		DistanceMeters: -1,
		ObservedAt:     now,
	}
}

// mockPayload builds a full deterministic fallback ProviderPayload covering
// every pollutant for source, used when a live fetch fails and mock
// fallback is permitted.
func mockPayload(q Query, pollutants []airquality.Pollutant, source string, now time.Time) *airquality.ProviderPayload {
	measurements := make([]airquality.Measurement, 0, len(pollutants))
	for _, p := range pollutants {
		measurements = append(measurements, mockMeasurement(q, p, source, now))
	}
	return &airquality.ProviderPayload{
		Source:       source,
		Measurements: measurements,
	}
}
