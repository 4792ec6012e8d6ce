// Package feature builds the fixed-shape feature matrix the ForecastEngine
// projects from: 24 hourly rows combining calendar fields, current weather,
// and the latest pollutant snapshot, plus two derived atmospheric indices.
package feature

import (
	"context"
	"math"
	"time"

	"github.com/skywatch/skywatch/internal/airquality"
	"github.com/skywatch/skywatch/internal/aqi"
	"github.com/skywatch/skywatch/internal/upstream"
	"github.com/skywatch/skywatch/pkg/geo"
)

// Row is one hour's worth of features. Row 0 represents 23 hours ago, row 23
// represents now — the column order is a stable contract consumed by the
// ForecastEngine.
type Row struct {
	HourOfDay     int
	DayOfWeek     int
	MonthOfYear   int
	TemperatureC  float64
	HumidityPct   float64
	WindSpeedMs   float64
	PressureHpa   float64
	NO2           float64
	O3            float64
	SO2           float64
	Stagnation    float64
	Dispersion    float64
}

// Matrix is the 24-row feature matrix for one location at one point in time.
type Matrix struct {
	Rows [24]Row
}

// HistoryProvider supplies past hourly weather observations. No
// implementation is wired: when absent, the current observation is broadcast
// to all 24 rows (spec's documented limitation), and this interface is an
// extension seam for a future real history feed.
type HistoryProvider interface {
	HourlyHistory(ctx context.Context, loc geo.Point, hours int) ([]upstream.Observation, error)
}

// Assemble builds the 24-row matrix for loc as of now, from the current
// Snapshot and weather Observation. obs may be nil (weather unavailable);
// snapshot may be empty.
func Assemble(snapshot *airquality.Snapshot, obs *upstream.Observation, now time.Time) *Matrix {
	var m Matrix

	temp, humidity, wind, pressure, cloud := 15.0, 60.0, 3.0, 1013.0, 50.0
	if obs != nil {
		temp = obs.TemperatureC
		humidity = obs.HumidityPct
		wind = obs.WindSpeedMs
		pressure = obs.PressureHpa
		cloud = obs.CloudCoverPct
	}

	no2 := concentrationOf(snapshot, aqi.NO2)
	o3 := concentrationOf(snapshot, aqi.O3)
	so2 := concentrationOf(snapshot, aqi.SO2)

	stagnation := clamp(1-wind/5, 0, 1)
	if pressure > 1020 {
		stagnation += 0.3
	}
	dispersion := wind/10 + cloud/100

	for i := 0; i < 24; i++ {
		// index 0 = 23h ago ... index 23 = now.
		hoursAgo := 23 - i
		at := now.Add(-time.Duration(hoursAgo) * time.Hour)

		m.Rows[i] = Row{
			HourOfDay:    at.Hour(),
			DayOfWeek:    int(at.Weekday()),
			MonthOfYear:  int(at.Month()),
			TemperatureC: temp,
			HumidityPct:  humidity,
			WindSpeedMs:  wind,
			PressureHpa:  pressure,
			NO2:          no2,
			O3:           o3,
			SO2:          so2,
			Stagnation:   stagnation,
			Dispersion:   dispersion,
		}
	}

	return &m
}

// Latest returns the most recent row (index 23), the one the ForecastEngine
// projects forward from.
func (m *Matrix) Latest() Row {
	return m.Rows[23]
}

func concentrationOf(snapshot *airquality.Snapshot, p airquality.Pollutant) float64 {
	if snapshot == nil {
		return 0
	}
	meas, ok := snapshot.Pollutants[p]
	if !ok {
		return 0
	}
	return meas.Concentration
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
