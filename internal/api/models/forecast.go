package models

// HourPrediction is the concentration estimate for one hour offset from now.
type HourPrediction struct {
	Hour          int       `json:"hour"`
	Concentration float64   `json:"concentration"`
	At            Timestamp `json:"at"`
	Method        string    `json:"method"`
}

// ConfidenceBand is a confidence interval around one HourPrediction.
type ConfidenceBand struct {
	Hour       int     `json:"hour"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// AQIPrediction is the AQI estimate for one hour offset from now.
type AQIPrediction struct {
	Hour  int       `json:"hour"`
	AQI   int       `json:"aqi"`
	Level string    `json:"level"`
	At    Timestamp `json:"at"`
}

// Alert is a threshold-crossing signal derived from a forecast.
type Alert struct {
	Type          string    `json:"type"`
	Pollutant     string    `json:"pollutant,omitempty"`
	HoursUntil    int       `json:"hoursUntil"`
	AQI           int       `json:"aqi,omitempty"`
	Concentration float64   `json:"concentration,omitempty"`
	At            Timestamp `json:"at"`
}

// Recommendation is a health-guidance bundle keyed to an hour's AQI level.
type Recommendation struct {
	Hour    int       `json:"hour"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      Timestamp `json:"at"`
}

// DataSources records which upstream categories contributed to a forecast.
type DataSources struct {
	Satellite string `json:"satellite"`
	Ground    string `json:"ground"`
	Weather   string `json:"weather"`
}

// ForecastResponse is the body of GET /v1/forecast.
type ForecastResponse struct {
	Lat             float64                        `json:"lat"`
	Lng             float64                        `json:"lng"`
	HorizonHours    int                            `json:"horizonHours"`
	GeneratedAt     Timestamp                      `json:"generatedAt"`
	PerPollutant    map[string][]HourPrediction    `json:"perPollutant"`
	AQI             []AQIPrediction                `json:"aqi"`
	Confidence      map[string][]ConfidenceBand    `json:"confidence"`
	Alerts          []Alert                        `json:"alerts"`
	Recommendations []Recommendation               `json:"recommendations"`
	DataSources     DataSources                    `json:"dataSources"`
}

// PollutantForecastResponse is the body of GET /v1/forecast/pollutant.
type PollutantForecastResponse struct {
	Lat          float64          `json:"lat"`
	Lng          float64          `json:"lng"`
	Pollutant    string           `json:"pollutant"`
	HorizonHours int              `json:"horizonHours"`
	GeneratedAt  Timestamp        `json:"generatedAt"`
	Predictions  []HourPrediction `json:"predictions"`
	Confidence   []ConfidenceBand `json:"confidence"`
	DataSources  DataSources      `json:"dataSources"`
}

// AQIForecastSummary is the trend synopsis attached to GET /v1/forecast/aqi.
type AQIForecastSummary struct {
	Current   int    `json:"current"`
	Peak      int    `json:"peak"`
	Average   float64 `json:"average"`
	Trend     string `json:"trend"`
	WorstHour int    `json:"worstHour"`
}

// Trend tags for AQIForecastSummary.Trend.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// AQIForecastResponse is the body of GET /v1/forecast/aqi.
type AQIForecastResponse struct {
	Lat             float64             `json:"lat"`
	Lng             float64             `json:"lng"`
	HorizonHours    int                 `json:"horizonHours"`
	GeneratedAt     Timestamp           `json:"generatedAt"`
	AQI             []AQIPrediction     `json:"aqi"`
	Alerts          []Alert             `json:"alerts"`
	Recommendations []Recommendation    `json:"recommendations"`
	Summary         AQIForecastSummary  `json:"summary"`
}
