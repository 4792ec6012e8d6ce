package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skywatch/skywatch/internal/airquality"
	"github.com/skywatch/skywatch/internal/api/models"
	"github.com/skywatch/skywatch/internal/api/response"
	"github.com/skywatch/skywatch/internal/cache"
	"github.com/skywatch/skywatch/internal/scheduler"
	"github.com/skywatch/skywatch/internal/upstream"
	"github.com/skywatch/skywatch/pkg/geo"
)

// SatelliteFetcher is the narrow capability AirQualityHandler needs from
// upstream.SatelliteClient.
type SatelliteFetcher interface {
	Fetch(ctx context.Context, q upstream.Query) (*airquality.ProviderPayload, error)
}

// GroundFetcher is the narrow capability AirQualityHandler needs from
// upstream.GroundClientA / upstream.GroundClientB.
type GroundFetcher interface {
	Fetch(ctx context.Context, q upstream.Query) (*airquality.ProviderPayload, error)
}

// AirQualityHandler serves the current canonical air-quality snapshot for a
// location, fanning out to the satellite and ground providers concurrently.
type AirQualityHandler struct {
	Satellite     SatelliteFetcher
	GroundA       GroundFetcher
	GroundB       GroundFetcher
	Canonicalizer *airquality.Canonicalizer
	SnapshotCache *cache.Cache[string, *airquality.Snapshot]
	RecentLocations *scheduler.RecentLocations
	Logger        zerolog.Logger
}

// Current handles GET /v1/air-quality/current?lat=&lng=&radiusKm=.
func (h *AirQualityHandler) Current(w http.ResponseWriter, r *http.Request) {
	q, err := parseAirQualityQuery(r)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if verr := q.Validate(); verr != nil {
		response.BadRequest(w, r, verr.Error(), nil)
		return
	}

	fetch := func(ctx context.Context) (*airquality.Snapshot, error) {
		return h.fetchSnapshot(ctx, q)
	}

	var (
		snapshot *airquality.Snapshot
		err2     error
	)
	if h.SnapshotCache != nil {
		snapshot, err2 = h.SnapshotCache.GetOrCompute(r.Context(), q.CacheKey(), fetch)
	} else {
		snapshot, err2 = fetch(r.Context())
	}
	if err2 != nil {
		h.Logger.Error().Err(err2).Msg("air quality snapshot fetch failed")
		response.InternalError(w, r, "failed to assemble air quality snapshot")
		return
	}

	if h.RecentLocations != nil {
		h.RecentLocations.Touch(geo.Point{Lat: q.Lat, Lng: q.Lng}, time.Now())
	}

	response.JSON(w, r, http.StatusOK, toSnapshotResponse(snapshot))
}

func (h *AirQualityHandler) fetchSnapshot(ctx context.Context, q upstream.Query) (*airquality.Snapshot, error) {
	var satellite, groundA, groundB *airquality.ProviderPayload

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := h.Satellite.Fetch(gctx, q)
		if err == nil {
			satellite = p
		}
		return nil // a single provider's failure never fails the snapshot
	})
	g.Go(func() error {
		p, err := h.GroundA.Fetch(gctx, q)
		if err == nil {
			groundA = p
		}
		return nil
	})
	g.Go(func() error {
		p, err := h.GroundB.Fetch(gctx, q)
		if err == nil {
			groundB = p
		}
		return nil
	})
	_ = g.Wait()

	loc := geo.Point{Lat: q.Lat, Lng: q.Lng}
	return h.Canonicalizer.Canonicalize(loc, time.Now(), satellite, groundA, groundB), nil
}

func parseAirQualityQuery(r *http.Request) (upstream.Query, error) {
	lat, err := parseFloatParam(r, "lat")
	if err != nil {
		return upstream.Query{}, err
	}
	lng, err := parseFloatParam(r, "lng")
	if err != nil {
		return upstream.Query{}, err
	}

	radiusKm := 25.0
	if raw := r.URL.Query().Get("radiusKm"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return upstream.Query{}, errInvalidParam("radiusKm")
		}
		radiusKm = v
	}

	return upstream.Query{Lat: lat, Lng: lng, RadiusKm: radiusKm}, nil
}

func toSnapshotResponse(s *airquality.Snapshot) models.SnapshotResponse {
	resp := models.SnapshotResponse{
		Lat:        s.Location.Lat,
		Lng:        s.Location.Lng,
		ObservedAt: models.Timestamp(s.ObservedAt),
		Sources:    s.Sources,
		DataQuality: models.DataQuality{
			Confidence: string(s.DataQuality.Confidence),
			Coverage:   string(s.DataQuality.Coverage),
			Resolution: s.DataQuality.Resolution,
		},
		AQI:   s.AQI,
		Level: string(s.Level),
	}

	for _, m := range s.Pollutants {
		resp.Pollutants = append(resp.Pollutants, models.PollutantReading{
			Pollutant:      string(m.Pollutant),
			Concentration:  m.Concentration,
			Unit:           m.Unit,
			Source:         m.Source,
			StationID:      m.StationID,
			DistanceMeters: m.DistanceMeters,
		})
	}

	for _, st := range s.Stations {
		resp.Stations = append(resp.Stations, models.Station{
			ID:             st.ID,
			Source:         st.Source,
			Name:           st.Name,
			Lat:            st.Lat,
			Lng:            st.Lng,
			DistanceMeters: st.DistanceMeters,
		})
	}

	return resp
}
