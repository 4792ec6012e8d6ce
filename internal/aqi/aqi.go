// Package aqi implements the EPA breakpoint Air Quality Index engine: pure,
// stateless functions mapping a pollutant concentration to an AQI integer in
// [0, 500], and an AQI value to a qualitative level.
package aqi

import "math"

// Pollutant enumerates the fixed set of canonical pollutants. Names are
// case-sensitive; upstream aliases are normalized before reaching this type.
type Pollutant string

const (
	NO2  Pollutant = "NO2"
	O3   Pollutant = "O3"
	SO2  Pollutant = "SO2"
	HCHO Pollutant = "HCHO"
	CO   Pollutant = "CO"
	PM25 Pollutant = "PM25"
	PM10 Pollutant = "PM10"
)

// Level is a qualitative AQI bucket.
type Level string

const (
	LevelGood               Level = "good"
	LevelModerate           Level = "moderate"
	LevelUnhealthySensitive Level = "unhealthy-sensitive"
	LevelUnhealthy          Level = "unhealthy"
	LevelVeryUnhealthy      Level = "very-unhealthy"
	LevelHazardous          Level = "hazardous"
)

// Breakpoint is one row of an EPA piecewise-linear AQI table.
type Breakpoint struct {
	CLow, CHigh float64
	ILow, IHigh int
}

// breakpoints holds the canonical EPA tables, reproduced exactly from the
// specification. Order matters: rows must be ascending by concentration.
var breakpoints = map[Pollutant][]Breakpoint{
	PM25: {
		{0, 12.0, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 150.4, 151, 200},
		{150.5, 250.4, 201, 300},
		{250.5, 350.4, 301, 400},
		{350.5, 500.4, 401, 500},
	},
	PM10: {
		{0, 54, 0, 50},
		{55, 154, 51, 100},
		{155, 254, 101, 150},
		{255, 354, 151, 200},
		{355, 424, 201, 300},
		{425, 504, 301, 400},
		{505, 604, 401, 500},
	},
	O3: {
		{0, 54, 0, 50},
		{55, 70, 51, 100},
		{71, 85, 101, 150},
		{86, 105, 151, 200},
		{106, 200, 201, 300},
	},
	NO2: {
		{0, 53, 0, 50},
		{54, 100, 51, 100},
		{101, 360, 101, 150},
		{361, 649, 151, 200},
		{650, 1249, 201, 300},
		{1250, 1649, 301, 400},
		{1650, 2049, 401, 500},
	},
	SO2: {
		{0, 35, 0, 50},
		{36, 75, 51, 100},
		{76, 185, 101, 150},
		{186, 304, 151, 200},
		{305, 604, 201, 300},
	},
	CO: {
		{0, 4.4, 0, 50},
		{4.5, 9.4, 51, 100},
		{9.5, 12.4, 101, 150},
		{12.5, 15.4, 151, 200},
		{15.5, 30.4, 201, 300},
		{30.5, 40.4, 301, 400},
		{40.5, 50.4, 401, 500},
	},
	HCHO: {
		{0, 10, 0, 50},
		{11, 20, 51, 100},
		{21, 50, 101, 150},
		{51, 100, 151, 200},
		{101, 200, 201, 300},
	},
}

// truncationStep is the precision each pollutant's table is defined at, per
// the EPA convention of truncating (not rounding) the raw concentration to
// the table's precision before breakpoint lookup. This is what makes the
// non-contiguous tables (e.g. O3 54→55, PM25 12.0→12.1) gapless in practice:
// a raw 54.5 ppb O3 reading truncates to 54 and lands in the {0,54} row.
var truncationStep = map[Pollutant]float64{
	PM25: 0.1,
	CO:   0.1,
	PM10: 1,
	O3:   1,
	NO2:  1,
	SO2:  1,
	HCHO: 1,
}

// truncate rounds concentration down to p's table precision.
func truncate(p Pollutant, concentration float64) float64 {
	step := truncationStep[p]
	if step == 0 {
		return concentration
	}
	return math.Floor(concentration/step+1e-9) * step
}

// CanonicalUnit returns the unit a pollutant's concentration must be
// expressed in before calling AQI.
func CanonicalUnit(p Pollutant) string {
	switch p {
	case PM25, PM10:
		return "μg/m³"
	case CO:
		return "ppm"
	default:
		return "ppb"
	}
}

// AQI maps a concentration in the canonical unit for pollutant p to an AQI
// integer in [0, 500]. Unknown pollutants return 0 rather than failing.
func AQI(p Pollutant, concentration float64) int {
	rows, ok := breakpoints[p]
	if !ok || len(rows) == 0 {
		return 0
	}
	if concentration < 0 {
		concentration = 0
	}
	concentration = truncate(p, concentration)

	first := rows[0]
	if concentration < first.CLow {
		return int(math.Round(float64(first.ILow) * concentration / first.CLow))
	}

	last := rows[len(rows)-1]
	if concentration > last.CHigh {
		return 500
	}

	for _, row := range rows {
		if concentration >= row.CLow && concentration <= row.CHigh {
			scaled := (float64(row.IHigh-row.ILow))/(row.CHigh-row.CLow)*(concentration-row.CLow) + float64(row.ILow)
			v := int(math.Round(scaled))
			if v > 500 {
				v = 500
			}
			return v
		}
	}

	// Truncation should make every valid concentration match a row; this is
	// a last-resort safety net for any residual gap. Snap down to the
	// preceding row's CHigh rather than failing open with 500.
	for i := len(rows) - 1; i >= 0; i-- {
		if concentration > rows[i].CHigh {
			return rows[i].IHigh
		}
	}
	return 0
}

// LevelFor buckets an AQI integer into a qualitative level.
func LevelFor(value int) Level {
	switch {
	case value <= 50:
		return LevelGood
	case value <= 100:
		return LevelModerate
	case value <= 150:
		return LevelUnhealthySensitive
	case value <= 200:
		return LevelUnhealthy
	case value <= 300:
		return LevelVeryUnhealthy
	default:
		return LevelHazardous
	}
}

// AllPollutants returns the fixed pollutant list in canonical order.
func AllPollutants() []Pollutant {
	return []Pollutant{NO2, O3, SO2, HCHO, CO, PM25, PM10}
}
