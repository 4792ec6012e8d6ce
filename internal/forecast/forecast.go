// Package forecast implements the ForecastEngine: a deterministic,
// statistical-only projection of per-pollutant concentration and AQI over a
// requested horizon, with confidence bands, alerts, and recommendations.
package forecast

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/skywatch/skywatch/internal/airquality"
	"github.com/skywatch/skywatch/internal/aqi"
	"github.com/skywatch/skywatch/internal/feature"
	"github.com/skywatch/skywatch/pkg/geo"
)

// HourPrediction is the concentration estimate for one hour offset from now.
type HourPrediction struct {
	Hour          int
	Concentration float64
	At            time.Time
	Method        string
}

// Method tags applied to HourPrediction. "model" is a documented, unused
// extension point: no ExperimentalModel implementation is wired, matching
// the source's single statistical baseline.
const (
	MethodStatistical = "statistical"
	MethodModel       = "model"
)

// AqiPrediction is the AQI estimate for one hour offset from now.
type AqiPrediction struct {
	Hour  int
	AQI   int
	Level aqi.Level
	At    time.Time
}

// Band is a confidence interval around one HourPrediction.
type Band struct {
	Hour       int
	Lower      float64
	Upper      float64
	Confidence float64
}

// DataSources records which upstream categories contributed to the inputs
// this Forecast was generated from.
type DataSources struct {
	Satellite string
	Ground    string
	Weather   string
}

const (
	SourceAvailable   = "available"
	SourceUnavailable = "unavailable"
)

// Alert is a threshold-crossing signal derived from the forecast. AQI is set
// for aqi-* alerts; Concentration and Pollutant are set for pollutant-*
// alerts — both are carried so a consumer (AlertDispatcher) can recompute
// severity against its own thresholds instead of the engine's defaults.
type Alert struct {
	Type          string
	Pollutant     aqi.Pollutant // zero value for aqi-* alerts
	HoursUntil    int
	AQI           int
	Concentration float64
	At            time.Time
}

// AQI alert type tags.
const (
	AlertAQIWarning        = "aqi-warning"
	AlertAQICritical       = "aqi-critical"
	AlertAQIEmergency      = "aqi-emergency"
	AlertPollutantWarning  = "pollutant-warning"
	AlertPollutantCritical = "pollutant-critical"
	AlertInfo              = "info"
)

// Recommendation is a health-guidance bundle keyed to an hour's AQI level.
type Recommendation struct {
	Hour    int
	Level   aqi.Level
	Message string
	At      time.Time
}

// Forecast is the full output of one ForecastEngine.Generate call.
type Forecast struct {
	Location        geo.Point
	HorizonHours    int
	GeneratedAt     time.Time
	PerPollutant    map[aqi.Pollutant][]HourPrediction
	AQI             []AqiPrediction
	Confidence      map[aqi.Pollutant][]Band
	Alerts          []Alert
	Recommendations []Recommendation
	DataSources     DataSources
}

// AQIThresholds are the default warning/critical/emergency AQI levels the
// ForecastEngine uses to derive its own baseline alerts. AlertDispatcher may
// re-evaluate against a subscriber's own (possibly tighter) thresholds.
type AQIThresholds struct {
	Warning   int
	Critical  int
	Emergency int
}

// DefaultAQIThresholds mirrors the EPA level bands: warning at "unhealthy for
// sensitive groups", critical at "unhealthy", emergency at "very unhealthy".
func DefaultAQIThresholds() AQIThresholds {
	return AQIThresholds{Warning: 101, Critical: 151, Emergency: 201}
}

// PollutantThreshold is a per-pollutant concentration warning/critical pair.
type PollutantThreshold struct {
	Warning  float64
	Critical float64
}

// DefaultPollutantThresholds derives warning/critical concentrations as
// multiples of each pollutant's baseline ambient concentration.
func DefaultPollutantThresholds() map[aqi.Pollutant]PollutantThreshold {
	out := make(map[aqi.Pollutant]PollutantThreshold, len(aqi.AllPollutants()))
	for _, p := range aqi.AllPollutants() {
		base := airquality.BaseConcentration(p)
		out[p] = PollutantThreshold{Warning: base * 1.5, Critical: base * 2.0}
	}
	return out
}

// Engine is the ForecastEngine. It is stateless beyond its configured
// thresholds and is safe for concurrent use.
type Engine struct {
	aqiThresholds       AQIThresholds
	pollutantThresholds map[aqi.Pollutant]PollutantThreshold
}

// Config configures an Engine. Zero-value fields fall back to defaults.
type Config struct {
	AQIThresholds       AQIThresholds
	PollutantThresholds map[aqi.Pollutant]PollutantThreshold
}

// NewEngine constructs a ForecastEngine.
func NewEngine(cfg Config) *Engine {
	thresholds := cfg.AQIThresholds
	if thresholds == (AQIThresholds{}) {
		thresholds = DefaultAQIThresholds()
	}
	pollutantThresholds := cfg.PollutantThresholds
	if pollutantThresholds == nil {
		pollutantThresholds = DefaultPollutantThresholds()
	}
	return &Engine{aqiThresholds: thresholds, pollutantThresholds: pollutantThresholds}
}

// Generate produces a Forecast for loc over horizonHours, from snapshot (may
// be nil/empty), features (may be nil), and now (the generation clock — the
// engine never reads wall-clock time itself, preserving determinism).
func (e *Engine) Generate(loc geo.Point, horizonHours int, snapshot *airquality.Snapshot, _ *feature.Matrix, sources DataSources, now time.Time) *Forecast {
	f := &Forecast{
		Location:     loc,
		HorizonHours: horizonHours,
		GeneratedAt:  now,
		PerPollutant: make(map[aqi.Pollutant][]HourPrediction),
		Confidence:   make(map[aqi.Pollutant][]Band),
		DataSources:  sources,
	}

	dayOrdinal := int64(now.Truncate(24 * time.Hour).Unix())

	for _, p := range aqi.AllPollutants() {
		base := baseConcentration(snapshot, p)
		predictions := make([]HourPrediction, 0, horizonHours)
		bands := make([]Band, 0, horizonHours)

		rng := rand.New(rand.NewSource(seedFor(loc, p, dayOrdinal))) //nolint:gosec // deterministic projection

		for h := 1; h <= horizonHours; h++ {
			trend := math.Sin(float64(h)*math.Pi/12) * 0.1
			noise := (rng.Float64()*2 - 1) * 0.1
			c := math.Max(0, base*(1+trend+noise))
			at := now.Add(time.Duration(h) * time.Hour)

			predictions = append(predictions, HourPrediction{
				Hour:          h,
				Concentration: c,
				At:            at,
				Method:        MethodStatistical,
			})
			bands = append(bands, Band{
				Hour:       h,
				Lower:      0.8 * c,
				Upper:      1.2 * c,
				Confidence: 0.8,
			})
		}

		f.PerPollutant[p] = predictions
		f.Confidence[p] = bands
	}

	f.AQI = e.aqiTrajectory(f.PerPollutant, horizonHours, now)
	f.Alerts = e.deriveAlerts(f)
	f.Recommendations = deriveRecommendations(f.AQI)

	return f
}

func (e *Engine) aqiTrajectory(perPollutant map[aqi.Pollutant][]HourPrediction, horizonHours int, now time.Time) []AqiPrediction {
	out := make([]AqiPrediction, horizonHours)
	for h := 1; h <= horizonHours; h++ {
		max := 0
		found := false
		for p, preds := range perPollutant {
			if h-1 >= len(preds) {
				continue
			}
			pred := preds[h-1]
			value := aqi.AQI(p, pred.Concentration)
			if !found || value > max {
				max = value
				found = true
			}
		}
		out[h-1] = AqiPrediction{
			Hour:  h,
			AQI:   max,
			Level: aqi.LevelFor(max),
			At:    now.Add(time.Duration(h) * time.Hour),
		}
	}
	return out
}

func (e *Engine) deriveAlerts(f *Forecast) []Alert {
	var alerts []Alert

	for _, pred := range f.AQI {
		if pred.Hour > 24 {
			continue
		}
		switch {
		case pred.AQI >= e.aqiThresholds.Emergency:
			alerts = append(alerts, Alert{Type: AlertAQIEmergency, HoursUntil: pred.Hour, AQI: pred.AQI, At: pred.At})
		case pred.AQI >= e.aqiThresholds.Critical:
			alerts = append(alerts, Alert{Type: AlertAQICritical, HoursUntil: pred.Hour, AQI: pred.AQI, At: pred.At})
		case pred.AQI >= e.aqiThresholds.Warning:
			alerts = append(alerts, Alert{Type: AlertAQIWarning, HoursUntil: pred.Hour, AQI: pred.AQI, At: pred.At})
		}
	}

	for p, preds := range f.PerPollutant {
		threshold, ok := e.pollutantThresholds[p]
		if !ok {
			continue
		}
		for _, pred := range preds {
			if pred.Hour > 24 {
				continue
			}
			switch {
			case pred.Concentration >= threshold.Critical:
				alerts = append(alerts, Alert{Type: AlertPollutantCritical, Pollutant: p, HoursUntil: pred.Hour, Concentration: pred.Concentration, At: pred.At})
			case pred.Concentration >= threshold.Warning:
				alerts = append(alerts, Alert{Type: AlertPollutantWarning, Pollutant: p, HoursUntil: pred.Hour, Concentration: pred.Concentration, At: pred.At})
			}
		}
	}

	// PerPollutant is a map, so its iteration order is randomized; break ties
	// on Pollutant then Type so same-hour alerts sort deterministically.
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.HoursUntil != b.HoursUntil {
			return a.HoursUntil < b.HoursUntil
		}
		if a.Pollutant != b.Pollutant {
			return a.Pollutant < b.Pollutant
		}
		return a.Type < b.Type
	})
	return alerts
}

// recommendationText is keyed to the AQI level, matching the canonical
// strings a client would render.
var recommendationText = map[aqi.Level]string{
	aqi.LevelModerate:           "Sensitive groups should consider reducing prolonged outdoor exertion.",
	aqi.LevelUnhealthySensitive: "Sensitive groups should limit prolonged outdoor exertion.",
	aqi.LevelUnhealthy:          "Everyone should limit prolonged outdoor exertion.",
	aqi.LevelVeryUnhealthy:      "Everyone should avoid prolonged outdoor exertion.",
	aqi.LevelHazardous:          "Everyone should avoid all outdoor exertion.",
}

func deriveRecommendations(trajectory []AqiPrediction) []Recommendation {
	var out []Recommendation
	for _, pred := range trajectory {
		if pred.AQI <= 100 {
			continue
		}
		msg, ok := recommendationText[pred.Level]
		if !ok {
			continue
		}
		out = append(out, Recommendation{Hour: pred.Hour, Level: pred.Level, Message: msg, At: pred.At})
	}
	return out
}

func baseConcentration(snapshot *airquality.Snapshot, p aqi.Pollutant) float64 {
	if snapshot != nil {
		if meas, ok := snapshot.Pollutants[p]; ok {
			return meas.Concentration
		}
	}
	return airquality.BaseConcentration(p)
}

// seedFor derives a deterministic PRNG seed from the location, pollutant,
// and generation day — never from wall-clock or crypto randomness.
func seedFor(loc geo.Point, p aqi.Pollutant, dayOrdinal int64) int64 {
	h := fnv.New64a()
	q := geo.Quantize(loc, 0.01)
	fmt.Fprintf(h, "%.2f,%.2f,%s,%d", q.Lat, q.Lng, p, dayOrdinal)
	return int64(h.Sum64()) //nolint:gosec // deterministic seed, not a capability boundary
}
