package aqi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/skywatch/internal/aqi"
)

func TestAQI_ZeroConcentration(t *testing.T) {
	for _, p := range aqi.AllPollutants() {
		assert.Equal(t, 0, aqi.AQI(p, 0), "pollutant %s", p)
	}
}

func TestAQI_Monotone(t *testing.T) {
	samples := []float64{0, 1, 5, 10, 20, 50, 100, 200, 400, 1000}
	for _, p := range aqi.AllPollutants() {
		prev := -1
		for _, c := range samples {
			v := aqi.AQI(p, c)
			require.GreaterOrEqual(t, v, prev, "pollutant %s regressed at concentration %v", p, c)
			prev = v
		}
	}
}

func TestAQI_Bounded(t *testing.T) {
	for _, p := range aqi.AllPollutants() {
		for _, c := range []float64{-5, 0, 1000, 1e6} {
			v := aqi.AQI(p, c)
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, 500)
		}
	}
}

// S1 — AQI spot check, PM2.5 = 20.0 μg/m³.
func TestAQI_S1_PM25SpotCheck(t *testing.T) {
	assert.Equal(t, 68, aqi.AQI(aqi.PM25, 20.0))
}

// S2 — AQI cap, PM10 = 700.
func TestAQI_S2_PM10Cap(t *testing.T) {
	assert.Equal(t, 500, aqi.AQI(aqi.PM10, 700))
}

func TestAQI_BoundaryBelongsToCurrentSegment(t *testing.T) {
	// c == cHigh of a row belongs to that row's segment, not the next one.
	assert.Equal(t, 50, aqi.AQI(aqi.PM25, 12.0))
	assert.Equal(t, 100, aqi.AQI(aqi.PM25, 35.4))
}

func TestAQI_SubLowestBreakpointScalesFromZero(t *testing.T) {
	v := aqi.AQI(aqi.PM10, 27)
	assert.InDelta(t, 25, v, 1)
}

func TestAQI_UnknownPollutantReturnsZero(t *testing.T) {
	assert.Equal(t, 0, aqi.AQI(aqi.Pollutant("XYZ"), 50))
}

func TestLevel_Buckets(t *testing.T) {
	cases := map[int]aqi.Level{
		0:   aqi.LevelGood,
		50:  aqi.LevelGood,
		51:  aqi.LevelModerate,
		100: aqi.LevelModerate,
		101: aqi.LevelUnhealthySensitive,
		150: aqi.LevelUnhealthySensitive,
		151: aqi.LevelUnhealthy,
		200: aqi.LevelUnhealthy,
		201: aqi.LevelVeryUnhealthy,
		300: aqi.LevelVeryUnhealthy,
		301: aqi.LevelHazardous,
		500: aqi.LevelHazardous,
	}
	for v, want := range cases {
		assert.Equal(t, want, aqi.LevelFor(v), "aqi=%d", v)
	}
}
