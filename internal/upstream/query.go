// Package upstream implements the four external data providers the service
// fans out to: SatelliteClient, GroundClientA, GroundClientB, and
// WeatherClient. Each exposes Fetch(ctx, query) plus a deterministic
// MockFetch fallback, per spec.
package upstream

import (
	"fmt"

	"github.com/skywatch/skywatch/internal/airquality"
)

// Query is the transport-agnostic request shape every Upstream Client and
// the external interfaces share.
type Query struct {
	Lat          float64
	Lng          float64
	RadiusKm     float64
	HorizonHours int
	Pollutant    airquality.Pollutant // optional, empty means "all"
}

// Validate enforces the range checks every client must apply before
// dispatch: invalid input is a programmer/caller error and must be reported,
// never silently defaulted or routed to a provider.
func (q Query) Validate() error {
	if q.Lat < -90 || q.Lat > 90 {
		return fmt.Errorf("%w: lat %.6f out of range [-90, 90]", ErrBadRequest, q.Lat)
	}
	if q.Lng < -180 || q.Lng > 180 {
		return fmt.Errorf("%w: lng %.6f out of range [-180, 180]", ErrBadRequest, q.Lng)
	}
	if q.RadiusKm != 0 && (q.RadiusKm <= 0 || q.RadiusKm > 100) {
		return fmt.Errorf("%w: radiusKm %.2f out of range (0, 100]", ErrBadRequest, q.RadiusKm)
	}
	if q.HorizonHours != 0 && (q.HorizonHours < 1 || q.HorizonHours > 72) {
		return fmt.Errorf("%w: horizonHours %d out of range [1, 72]", ErrBadRequest, q.HorizonHours)
	}
	return nil
}

// CacheKey returns the key a CacheLayer should coalesce this query's fetch
// under. Queries are rounded to 2 decimal places so nearby requests within
// the same cache window share one in-flight computation.
func (q Query) CacheKey() string {
	return fmt.Sprintf("%.2f,%.2f,h%d,p%s", q.Lat, q.Lng, q.HorizonHours, q.Pollutant)
}
