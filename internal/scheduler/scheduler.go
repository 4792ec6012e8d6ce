// Package scheduler implements the Scheduler: a ticking worker pool that
// refreshes upstream data, rebuilds forecasts, and publishes them for every
// "hot" location, either on its own cadence or on an external Pub/Sub
// trigger. Grounded in the teacher's internal/worker refresh-job pattern
// (channel fan-out + sync.WaitGroup), generalized from hardcoded cities to
// a subscriber-derived hot-location set.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skywatch/skywatch/internal/airquality"
	"github.com/skywatch/skywatch/internal/alert"
	"github.com/skywatch/skywatch/internal/cache"
	"github.com/skywatch/skywatch/internal/feature"
	"github.com/skywatch/skywatch/internal/featureflags"
	"github.com/skywatch/skywatch/internal/forecast"
	"github.com/skywatch/skywatch/internal/pushbus"
	"github.com/skywatch/skywatch/internal/subscription"
	"github.com/skywatch/skywatch/internal/upstream"
	"github.com/skywatch/skywatch/pkg/geo"
)

// DefaultInterval is the Scheduler's regular refresh cadence.
const DefaultInterval = 15 * time.Minute

// DefaultShutdownTimeout bounds how long Stop waits for in-flight refreshes
// to finish before giving up.
const DefaultShutdownTimeout = 30 * time.Second

// QuantizePrecision is the grid size hot locations are deduplicated at,
// matching the Push Bus room key precision.
const QuantizePrecision = 0.1

// RecentLocationWindow is how long a request-touched location stays "hot"
// after its last touch.
const RecentLocationWindow = time.Hour

// SatelliteFetcher, GroundFetcher, and WeatherFetcher are the capability
// handles the Scheduler needs from each Upstream Client — narrowed from the
// concrete client types so a test double needs only implement one method.
type SatelliteFetcher interface {
	Fetch(ctx context.Context, q upstream.Query) (*airquality.ProviderPayload, error)
}

type GroundFetcher interface {
	Fetch(ctx context.Context, q upstream.Query) (*airquality.ProviderPayload, error)
}

type WeatherFetcher interface {
	Fetch(ctx context.Context, q upstream.Query) (*upstream.Observation, error)
}

// RecentLocations tracks request-touched points so the Scheduler can refresh
// locations that have seen recent demand, not just active subscriptions.
type RecentLocations struct {
	mu     sync.Mutex
	touched map[geo.Point]time.Time
}

// NewRecentLocations constructs an empty tracker.
func NewRecentLocations() *RecentLocations {
	return &RecentLocations{touched: make(map[geo.Point]time.Time)}
}

// Touch records loc as recently requested, at now.
func (r *RecentLocations) Touch(loc geo.Point, now time.Time) {
	q := geo.Quantize(loc, QuantizePrecision)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched[q] = now
}

// Active returns every location touched within RecentLocationWindow of now,
// evicting anything older.
func (r *RecentLocations) Active(now time.Time) []geo.Point {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]geo.Point, 0, len(r.touched))
	for loc, at := range r.touched {
		if now.Sub(at) > RecentLocationWindow {
			delete(r.touched, loc)
			continue
		}
		out = append(out, loc)
	}
	return out
}

// Config configures a Scheduler.
type Config struct {
	Interval        time.Duration
	Concurrency     int
	FetchTimeout    time.Duration
	ShutdownTimeout time.Duration
	HorizonHours    int

	Subscriptions   *subscription.Registry
	RecentLocations *RecentLocations

	Satellite SatelliteFetcher
	GroundA   GroundFetcher
	GroundB   GroundFetcher
	Weather   WeatherFetcher

	ForecastEngine *forecast.Engine
	Dispatcher     *alert.Dispatcher
	PushBus        *pushbus.Hub

	SnapshotCache *cache.Cache[string, *airquality.Snapshot]

	// Flags gates the scheduler_paused kill switch. When set and enabled,
	// the ticker still fires but RunOnce skips the refresh pass.
	Flags *featureflags.Service

	Logger zerolog.Logger
}

// RunResult summarizes one sweep across every hot location.
type RunResult struct {
	StartedAt  time.Time
	Duration   time.Duration
	Locations  int
	Successful int
	Failed     int
	Errors     []LocationError
}

// LocationError records a per-location failure. One location's failure
// never aborts the sweep for the others.
type LocationError struct {
	Location geo.Point
	Err      error
}

// Scheduler ticks on Config.Interval and refreshes every hot location
// through a bounded worker pool.
type Scheduler struct {
	cfg       Config
	canon     *airquality.Canonicalizer
	stopCh    chan struct{}
	stoppedCh chan struct{}
	runOnce   sync.Once
}

// New constructs a Scheduler. Zero-value Config fields fall back to
// defaults.
func New(cfg Config) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 3
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.HorizonHours == 0 {
		cfg.HorizonHours = 24
	}
	return &Scheduler{
		cfg:       cfg,
		canon:     airquality.NewCanonicalizer(),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start runs the Scheduler's ticker loop until ctx is canceled or Stop is
// called. Blocking; run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Trigger runs one sweep immediately, outside the regular cadence — the
// handler for an on-demand Pub/Sub refresh message.
func (s *Scheduler) Trigger(ctx context.Context) *RunResult {
	return s.RunOnce(ctx)
}

// Stop signals the ticker loop to exit and waits up to ShutdownTimeout for
// it to do so.
func (s *Scheduler) Stop() {
	s.runOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.stoppedCh:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.cfg.Logger.Warn().Msg("scheduler shutdown timed out, stopping anyway")
	}
}

// RunOnce sweeps every currently-hot location through the refresh pipeline.
// If the scheduler_paused flag is enabled, the sweep is skipped entirely —
// the ticker still fires, it just does no work this tick.
func (s *Scheduler) RunOnce(ctx context.Context) *RunResult {
	started := time.Now()

	if s.cfg.Flags != nil && s.cfg.Flags.IsSchedulerPaused(ctx) {
		s.cfg.Logger.Info().Msg("scheduler sweep skipped: scheduler_paused")
		return &RunResult{StartedAt: started, Duration: time.Since(started)}
	}

	locations := s.hotLocations(started)

	result := &RunResult{StartedAt: started, Locations: len(locations)}

	locCh := make(chan geo.Point, len(locations))
	type outcome struct {
		loc geo.Point
		err error
	}
	outCh := make(chan outcome, len(locations))

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for loc := range locCh {
				outCh <- outcome{loc: loc, err: s.refreshLocation(ctx, loc)}
			}
		}()
	}

	for _, loc := range locations {
		locCh <- loc
	}
	close(locCh)

	go func() {
		wg.Wait()
		close(outCh)
	}()

	for o := range outCh {
		if o.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, LocationError{Location: o.loc, Err: o.err})
			s.cfg.Logger.Warn().Err(o.err).Float64("lat", o.loc.Lat).Float64("lng", o.loc.Lng).Msg("location refresh failed")
			continue
		}
		result.Successful++
	}

	result.Duration = time.Since(started)
	s.cfg.Logger.Info().
		Int("locations", result.Locations).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("scheduler sweep completed")

	return result
}

// hotLocations is the union of every subscriber's location and every
// recently-touched request location, deduplicated on the Push Bus's
// quantization grid.
func (s *Scheduler) hotLocations(now time.Time) []geo.Point {
	seen := make(map[geo.Point]geo.Point)

	if s.cfg.Subscriptions != nil {
		for _, sub := range s.cfg.Subscriptions.All() {
			p := geo.Point{Lat: sub.Location.Lat, Lng: sub.Location.Lng}
			q := geo.Quantize(p, QuantizePrecision)
			if _, ok := seen[q]; !ok {
				seen[q] = p
			}
		}
	}

	if s.cfg.RecentLocations != nil {
		for _, p := range s.cfg.RecentLocations.Active(now) {
			q := geo.Quantize(p, QuantizePrecision)
			if _, ok := seen[q]; !ok {
				seen[q] = p
			}
		}
	}

	out := make([]geo.Point, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out
}

// refreshLocation runs the full per-location pipeline: fetch upstream data,
// canonicalize, build features, generate a forecast, then publish it and
// run alerting.
func (s *Scheduler) refreshLocation(ctx context.Context, loc geo.Point) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	q := upstream.Query{Lat: loc.Lat, Lng: loc.Lng}

	var satellite, groundA, groundB *airquality.ProviderPayload
	var obs *upstream.Observation

	if s.cfg.Satellite != nil {
		if p, err := s.cfg.Satellite.Fetch(fetchCtx, q); err == nil {
			satellite = p
		}
	}
	if s.cfg.GroundA != nil {
		if p, err := s.cfg.GroundA.Fetch(fetchCtx, q); err == nil {
			groundA = p
		}
	}
	if s.cfg.GroundB != nil {
		if p, err := s.cfg.GroundB.Fetch(fetchCtx, q); err == nil {
			groundB = p
		}
	}
	if s.cfg.Weather != nil {
		if o, err := s.cfg.Weather.Fetch(fetchCtx, q); err == nil {
			obs = o
		}
	}

	now := time.Now()
	snapshot := s.canon.Canonicalize(loc, now, satellite, groundA, groundB)

	if s.cfg.SnapshotCache != nil {
		s.cfg.SnapshotCache.Set(q.CacheKey(), snapshot)
	}

	matrix := feature.Assemble(snapshot, obs, now)

	sources := forecast.DataSources{}
	if satellite != nil {
		sources.Satellite = forecast.SourceAvailable
	} else {
		sources.Satellite = forecast.SourceUnavailable
	}
	if groundA != nil || groundB != nil {
		sources.Ground = forecast.SourceAvailable
	} else {
		sources.Ground = forecast.SourceUnavailable
	}
	if obs != nil {
		sources.Weather = forecast.SourceAvailable
	} else {
		sources.Weather = forecast.SourceUnavailable
	}

	f := s.cfg.ForecastEngine.Generate(loc, s.cfg.HorizonHours, snapshot, matrix, sources, now)

	if s.cfg.PushBus != nil {
		s.cfg.PushBus.Publish(roomForLocation(geo.Quantize(loc, QuantizePrecision)), f)
	}

	if s.cfg.Dispatcher != nil && s.cfg.Subscriptions != nil {
		for _, sub := range s.cfg.Subscriptions.WithinRadius(loc) {
			if _, err := s.cfg.Dispatcher.Dispatch(ctx, f, sub, now); err != nil {
				s.cfg.Logger.Warn().Err(err).Str("subscriber", sub.ID).Msg("alert dispatch failed")
			}
		}
	}

	return nil
}

// roomForLocation derives the Push Bus room key for a quantized location.
func roomForLocation(q geo.Point) string {
	return "loc:" + geo.PointKey(q)
}
