package airquality

import "github.com/skywatch/skywatch/internal/aqi"

// BaseConcentration returns the typical-ambient concentration used both as
// the ForecastEngine's fallback baseline when a Snapshot lacks a pollutant,
// and as the magnitude deterministic mock payloads are centered on.
func BaseConcentration(p Pollutant) float64 {
	switch p {
	case aqi.NO2:
		return 20
	case aqi.O3:
		return 50
	case aqi.SO2:
		return 10
	case aqi.HCHO:
		return 5
	case aqi.CO:
		return 1.0
	case aqi.PM25:
		return 15
	case aqi.PM10:
		return 25
	default:
		return 0
	}
}

// CanonicalUnitFor is a thin re-export of aqi.CanonicalUnit for callers that
// only import airquality.
func CanonicalUnitFor(p Pollutant) string {
	return aqi.CanonicalUnit(p)
}
