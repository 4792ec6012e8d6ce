// Package subscription implements the SubscriptionRegistry: the exclusive,
// in-memory owner of the subscriber set, mediating every read and write
// through a reader-writer lock the way the teacher's featureflags.Service
// guards its cache.
package subscription

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/skywatch/skywatch/internal/aqi"
	"github.com/skywatch/skywatch/pkg/geo"
)

// Channel is a delivery channel a subscriber can enable.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// AQIThresholds is a subscriber's own warning/critical/emergency AQI levels,
// which override the ForecastEngine's defaults when AlertDispatcher
// evaluates alerts for this subscriber.
type AQIThresholds struct {
	Warning   int
	Critical  int
	Emergency int
}

// PollutantThreshold is a subscriber's own per-pollutant warning/critical
// concentration pair.
type PollutantThreshold struct {
	Warning  float64
	Critical float64
}

// Prefs holds a subscriber's notification preferences.
type Prefs struct {
	AQIThresholds          AQIThresholds
	PerPollutantThresholds map[aqi.Pollutant]PollutantThreshold
	Channels               map[Channel]bool
	Enabled                bool
}

// HasChannel reports whether ch is an enabled delivery channel.
func (p Prefs) HasChannel(ch Channel) bool {
	return p.Channels[ch]
}

// Location is a subscriber's watched point and radius.
type Location struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
}

func (l Location) point() geo.Point {
	return geo.Point{Lat: l.Lat, Lng: l.Lng}
}

// Subscriber is one entry in the SubscriptionRegistry.
type Subscriber struct {
	ID             string
	Location       Location
	Prefs          Prefs
	LastDispatchAt time.Time
}

// ErrNotFound is returned when an operation references an unknown subscriber id.
var ErrNotFound = errors.New("subscriber not found")

// ErrUnknownPrefField is returned by UpdatePrefs when the patch references a
// field UpdatePrefs does not recognize.
var ErrUnknownPrefField = errors.New("unknown preference field")

// PrefsPatch is a partial update to a Subscriber's Prefs. Only non-nil
// fields are applied; fields outside this set are rejected by the caller
// before UpdatePrefs is invoked (the patch shape itself is the allow-list).
type PrefsPatch struct {
	AQIThresholds          *AQIThresholds
	PerPollutantThresholds map[aqi.Pollutant]PollutantThreshold
	Channels               map[Channel]bool
	Enabled                *bool
}

// Registry is the exclusive in-memory owner of the subscriber map.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{subscribers: make(map[string]*Subscriber)}
}

// Subscribe upserts a subscriber. lastDispatchAt is reset to zero only on a
// new insert; an existing subscriber's dispatch history is preserved.
func (r *Registry) Subscribe(id string, loc Location, prefs Prefs) *Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.subscribers[id]; ok {
		existing.Location = loc
		existing.Prefs = prefs
		return existing.copy()
	}

	sub := &Subscriber{ID: id, Location: loc, Prefs: prefs}
	r.subscribers[id] = sub
	return sub.copy()
}

// Unsubscribe removes a subscriber. A no-op if the id is unknown.
func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, id)
}

// Get returns a copy of the subscriber with the given id.
func (r *Registry) Get(id string) (*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subscribers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sub.copy(), nil
}

// UpdatePrefs merges patch into the subscriber's existing Prefs. Only the
// fields PrefsPatch exposes may be changed: any fields outside that set are
// rejected by construction (the PrefsPatch type is the allow-list).
func (r *Registry) UpdatePrefs(id string, patch PrefsPatch) (*Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscribers[id]
	if !ok {
		return nil, ErrNotFound
	}

	if patch.AQIThresholds != nil {
		sub.Prefs.AQIThresholds = *patch.AQIThresholds
	}
	if patch.PerPollutantThresholds != nil {
		if sub.Prefs.PerPollutantThresholds == nil {
			sub.Prefs.PerPollutantThresholds = make(map[aqi.Pollutant]PollutantThreshold)
		}
		for p, th := range patch.PerPollutantThresholds {
			sub.Prefs.PerPollutantThresholds[p] = th
		}
	}
	if patch.Channels != nil {
		if sub.Prefs.Channels == nil {
			sub.Prefs.Channels = make(map[Channel]bool)
		}
		for ch, enabled := range patch.Channels {
			sub.Prefs.Channels[ch] = enabled
		}
	}
	if patch.Enabled != nil {
		sub.Prefs.Enabled = *patch.Enabled
	}

	return sub.copy(), nil
}

// SetLastDispatchAt records when a subscriber was last dispatched to. Called
// by AlertDispatcher under its own per-subscriber serialization.
func (r *Registry) SetLastDispatchAt(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subscribers[id]; ok {
		sub.LastDispatchAt = at
	}
}

// WithinRadius returns copies of every subscriber whose location is within
// its own radiusKm of loc, using the spherical-earth haversine formula. A
// subscriber with radius 0 never matches, since WithinRadiusKm rejects
// non-positive radii.
func (r *Registry) WithinRadius(loc geo.Point) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscriber
	for _, sub := range r.subscribers {
		if geo.WithinRadiusKm(sub.Location.point(), loc, sub.Location.RadiusKm) {
			out = append(out, sub.copy())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns copies of every subscriber, sorted by id.
func (r *Registry) All() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		out = append(out, sub.copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered subscribers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

func (s *Subscriber) copy() *Subscriber {
	cp := *s
	if s.Prefs.PerPollutantThresholds != nil {
		cp.Prefs.PerPollutantThresholds = make(map[aqi.Pollutant]PollutantThreshold, len(s.Prefs.PerPollutantThresholds))
		for k, v := range s.Prefs.PerPollutantThresholds {
			cp.Prefs.PerPollutantThresholds[k] = v
		}
	}
	if s.Prefs.Channels != nil {
		cp.Prefs.Channels = make(map[Channel]bool, len(s.Prefs.Channels))
		for k, v := range s.Prefs.Channels {
			cp.Prefs.Channels[k] = v
		}
	}
	return &cp
}
