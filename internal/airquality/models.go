// Package airquality holds the canonical data model shared by every Upstream
// Client and the Canonicalizer: pollutant measurements, monitoring stations,
// and the point-in-time Snapshot they are merged into.
package airquality

import (
	"strings"
	"time"

	"github.com/skywatch/skywatch/internal/aqi"
	"github.com/skywatch/skywatch/pkg/geo"
)

// Pollutant is the canonical pollutant enumeration, owned by the AQI Engine.
type Pollutant = aqi.Pollutant

// Measurement is a single pollutant reading from one provider.
type Measurement struct {
	Pollutant      Pollutant
	Concentration  float64
	Unit           string
	Source         string
	StationID      string // empty if not station-attributed
	ObservedAt     time.Time
	DistanceMeters float64 // -1 means unknown/not applicable
}

// Station is an immutable-after-canonicalization monitoring point.
// Identity is the (ID, Source) pair.
type Station struct {
	ID             string
	Source         string
	Name           string
	Lat            float64
	Lng            float64
	DistanceMeters float64
}

// Confidence is the Snapshot's qualitative data-quality rating.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Coverage describes whether a Snapshot reflects partial or full provider
// participation.
type Coverage string

const (
	CoveragePartial Coverage = "partial"
	CoverageFull    Coverage = "full"
)

// DataQuality summarizes how trustworthy and complete a Snapshot is.
type DataQuality struct {
	Confidence Confidence
	Coverage   Coverage
	Resolution string
}

// Snapshot is the canonical point-in-time air-quality view for one location.
type Snapshot struct {
	Location    geo.Point
	ObservedAt  time.Time
	Pollutants  map[Pollutant]Measurement
	Stations    []Station
	Sources     []string
	DataQuality DataQuality
	AQI         int
	Level       aqi.Level
}

// NewEmptySnapshot returns the Snapshot the Canonicalizer produces for empty
// input: no measurements, confidence "low".
func NewEmptySnapshot(loc geo.Point, at time.Time) *Snapshot {
	return &Snapshot{
		Location:   loc,
		ObservedAt: at,
		Pollutants: make(map[Pollutant]Measurement),
		Stations:   nil,
		Sources:    nil,
		DataQuality: DataQuality{
			Confidence: ConfidenceLow,
			Coverage:   CoveragePartial,
			Resolution: "none",
		},
		AQI:   0,
		Level: aqi.LevelGood,
	}
}

// pollutantAliases maps normalized (lower-cased, punctuation-stripped)
// provider pollutant names to the canonical Pollutant enum.
var pollutantAliases = map[string]Pollutant{
	"no2":   aqi.NO2,
	"o3":    aqi.O3,
	"so2":   aqi.SO2,
	"hcho":  aqi.HCHO,
	"ch2o":  aqi.HCHO,
	"co":    aqi.CO,
	"pm25":  aqi.PM25,
	"pm10":  aqi.PM10,
}

// NormalizePollutant case-folds and strips punctuation from a raw provider
// pollutant name and resolves it against the alias table (e.g. "pm2.5" and
// "pm2_5" both resolve to PM25).
func NormalizePollutant(raw string) (Pollutant, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(".", "", "_", "", "-", "", " ", "").Replace(key)
	p, ok := pollutantAliases[key]
	return p, ok
}
