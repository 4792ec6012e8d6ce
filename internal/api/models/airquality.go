package models

// PollutantReading is one canonicalized pollutant measurement in a snapshot
// response.
type PollutantReading struct {
	Pollutant      string  `json:"pollutant"`
	Concentration  float64 `json:"concentration"`
	Unit           string  `json:"unit"`
	Source         string  `json:"source"`
	StationID      string  `json:"stationId,omitempty"`
	DistanceMeters float64 `json:"distanceMeters,omitempty"`
}

// Station is a monitoring station that contributed to a snapshot.
type Station struct {
	ID             string  `json:"id"`
	Source         string  `json:"source"`
	Name           string  `json:"name"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// DataQuality summarizes how trustworthy and complete a snapshot is.
type DataQuality struct {
	Confidence string `json:"confidence"`
	Coverage   string `json:"coverage"`
	Resolution string `json:"resolution"`
}

// SnapshotResponse is the body of GET /v1/air-quality/current.
type SnapshotResponse struct {
	Lat         float64            `json:"lat"`
	Lng         float64            `json:"lng"`
	ObservedAt  Timestamp          `json:"observedAt"`
	Pollutants  []PollutantReading `json:"pollutants"`
	Stations    []Station          `json:"stations"`
	Sources     []string           `json:"sources"`
	DataQuality DataQuality        `json:"dataQuality"`
	AQI         int                `json:"aqi"`
	Level       string             `json:"level"`
}
