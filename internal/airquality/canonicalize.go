package airquality

import (
	"sort"
	"time"

	"github.com/skywatch/skywatch/internal/aqi"
	"github.com/skywatch/skywatch/pkg/geo"
)

// ProviderPayload is the raw, already-typed result of one Upstream Client
// fetch: a set of measurements and the stations they were observed at. Any
// payload may be nil, meaning that provider contributed nothing.
type ProviderPayload struct {
	Source       string
	Measurements []Measurement
	Stations     []Station
}

// Canonicalizer merges per-provider payloads into a single canonical
// Snapshot. It never fails: empty or nil input yields an empty Snapshot.
type Canonicalizer struct{}

// NewCanonicalizer constructs a Canonicalizer. It is stateless; the
// constructor exists to mirror the other leaf components' shape and as an
// extension point for future injected configuration.
func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{}
}

// Canonicalize merges the satellite, ground-network-A, and ground-network-B
// payloads (any of which may be nil) into a Snapshot for loc, observed at
// `now`. WeatherClient output never contributes pollutant measurements and
// is not an input here; it feeds the FeatureAssembler instead.
func (c *Canonicalizer) Canonicalize(loc geo.Point, now time.Time, satellite, groundA, groundB *ProviderPayload) *Snapshot {
	payloads := []*ProviderPayload{satellite, groundA, groundB}

	best := make(map[Pollutant]Measurement)
	stationSet := make(map[string]Station)
	stationOrder := make([]string, 0)
	sourceSeen := make(map[string]bool)
	sources := make([]string, 0)

	for _, p := range payloads {
		if p == nil {
			continue
		}
		if !sourceSeen[p.Source] && (len(p.Measurements) > 0 || len(p.Stations) > 0) {
			sourceSeen[p.Source] = true
			sources = append(sources, p.Source)
		}
		for _, m := range p.Measurements {
			if existing, ok := best[m.Pollutant]; !ok || preferMeasurement(m, existing) {
				best[m.Pollutant] = m
			}
		}
		for _, s := range p.Stations {
			key := s.ID + ":" + s.Source
			if _, ok := stationSet[key]; !ok {
				stationOrder = append(stationOrder, key)
			}
			stationSet[key] = s
		}
	}

	if len(best) == 0 {
		snap := NewEmptySnapshot(loc, now)
		snap.Sources = sources
		return snap
	}

	stations := make([]Station, 0, len(stationOrder))
	for _, key := range stationOrder {
		stations = append(stations, stationSet[key])
	}

	maxAQI := 0
	for pollutant, m := range best {
		if v := aqi.AQI(pollutant, m.Concentration); v > maxAQI {
			maxAQI = v
		}
	}

	return &Snapshot{
		Location:    loc,
		ObservedAt:  now,
		Pollutants:  best,
		Stations:    stations,
		Sources:     sources,
		DataQuality: confidenceFor(satellite, groundA, groundB),
		AQI:         maxAQI,
		Level:       aqi.LevelFor(maxAQI),
	}
}

// preferMeasurement reports whether candidate should replace current as the
// canonical measurement for their shared pollutant: nearest station wins;
// ties broken by newest observedAt, then alphabetical source order.
func preferMeasurement(candidate, current Measurement) bool {
	cd, ed := candidate.DistanceMeters, current.DistanceMeters
	if cd < 0 {
		cd = 1e18 // unknown distance never outranks a known one
	}
	if ed < 0 {
		ed = 1e18
	}
	if cd != ed {
		return cd < ed
	}
	if !candidate.ObservedAt.Equal(current.ObservedAt) {
		return candidate.ObservedAt.After(current.ObservedAt)
	}
	return candidate.Source < current.Source
}

func confidenceFor(satellite, groundA, groundB *ProviderPayload) DataQuality {
	hasSatellite := satellite != nil && len(satellite.Measurements) > 0
	hasGround := (groundA != nil && len(groundA.Measurements) > 0) || (groundB != nil && len(groundB.Measurements) > 0)

	var confidence Confidence
	switch {
	case hasSatellite && hasGround:
		confidence = ConfidenceHigh
	case hasSatellite || hasGround:
		confidence = ConfidenceMedium
	default:
		confidence = ConfidenceLow
	}

	coverage := CoveragePartial
	if hasSatellite && hasGround {
		coverage = CoverageFull
	}

	return DataQuality{
		Confidence: confidence,
		Coverage:   coverage,
		Resolution: "hourly",
	}
}

// SortedPollutants returns the snapshot's pollutants in a stable, canonical
// order — used for deterministic JSON/test output.
func (s *Snapshot) SortedPollutants() []Pollutant {
	out := make([]Pollutant, 0, len(s.Pollutants))
	for p := range s.Pollutants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
