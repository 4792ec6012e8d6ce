// Package alert implements the AlertDispatcher: given a forecast and a
// subscriber, it enforces a per-subscriber cooldown, re-evaluates alert
// severity against the subscriber's own thresholds, and fans out to the
// subscriber's enabled channels.
package alert

import (
	"container/ring"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skywatch/skywatch/internal/forecast"
	"github.com/skywatch/skywatch/internal/subscription"
)

// DefaultCooldown is the minimum interval between successive dispatches to
// the same subscriber.
const DefaultCooldown = time.Hour

// HistoryCapacity bounds the in-memory dispatch ring; the oldest record is
// evicted once full.
const HistoryCapacity = 1000

// DispatchRecord is one entry in the dispatch history ring.
type DispatchRecord struct {
	SubscriberID string
	Alerts       []forecast.Alert
	At           time.Time
}

// PushPublisher is the capability handle the dispatcher uses to reach the
// Push Bus, without retaining a reference to the Hub itself — this breaks
// the Scheduler → Dispatcher → Push Bus → Scheduler cycle the source's
// object graph has.
type PushPublisher interface {
	Publish(room string, event any)
}

// NotificationSink delivers a formatted body to one subscriber over a
// non-push channel. Implementations may fail; failures are logged and
// swallowed, never surfaced to the caller.
type NotificationSink interface {
	Send(ctx context.Context, subscriberID, body string) error
}

// HistorySink optionally mirrors dispatch records for durability across
// restarts. A best-effort sink: failures are logged, not surfaced.
type HistorySink interface {
	Record(ctx context.Context, rec DispatchRecord) error
}

// SubscriberStore persists the cooldown watermark the Dispatcher reads on
// every evaluation. Without it, LastDispatchAt only ever lives on the
// throwaway *Subscriber copy Dispatch was handed, and every sweep would
// see a zero cooldown.
type SubscriberStore interface {
	SetLastDispatchAt(id string, at time.Time)
}

// Config configures a Dispatcher.
type Config struct {
	Cooldown    time.Duration
	Push        PushPublisher
	Email       NotificationSink
	SMS         NotificationSink
	HistorySink HistorySink
	Store       SubscriberStore
	Logger      zerolog.Logger
}

// Dispatcher is the AlertDispatcher.
type Dispatcher struct {
	cooldown    time.Duration
	push        PushPublisher
	email       NotificationSink
	sms         NotificationSink
	historySink HistorySink
	store       SubscriberStore
	logger      zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	historyMu sync.Mutex
	history   *ring.Ring
	histLen   int
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	return &Dispatcher{
		cooldown:    cooldown,
		push:        cfg.Push,
		email:       cfg.Email,
		sms:         cfg.SMS,
		historySink: cfg.HistorySink,
		store:       cfg.Store,
		logger:      cfg.Logger,
		locks:       make(map[string]*sync.Mutex),
		history:     ring.New(HistoryCapacity),
	}
}

func (d *Dispatcher) lockFor(id string) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()
	l, ok := d.locks[id]
	if !ok {
		l = &sync.Mutex{}
		d.locks[id] = l
	}
	return l
}

// Dispatch evaluates f's alerts for sub, serialized per-subscriber so
// cooldown checks are race-free. Returns true if a dispatch occurred.
func (d *Dispatcher) Dispatch(ctx context.Context, f *forecast.Forecast, sub *subscription.Subscriber, now time.Time) (bool, error) {
	if !sub.Prefs.Enabled {
		return false, nil
	}

	lock := d.lockFor(sub.ID)
	lock.Lock()
	defer lock.Unlock()

	if !sub.LastDispatchAt.IsZero() && now.Sub(sub.LastDispatchAt) < d.cooldown {
		return false, nil
	}

	filtered := evaluate(f.Alerts, sub.Prefs)
	if len(filtered) == 0 {
		return false, nil
	}

	d.send(ctx, sub, filtered)
	sub.LastDispatchAt = now
	if d.store != nil {
		d.store.SetLastDispatchAt(sub.ID, now)
	}
	d.record(ctx, sub.ID, filtered, now)
	return true, nil
}

// Test injects a synthetic info alert for sub, bypassing enabled-state and
// cooldown, and dispatches it immediately. Used by the "POST test" operation.
func (d *Dispatcher) Test(ctx context.Context, sub *subscription.Subscriber, now time.Time) {
	lock := d.lockFor(sub.ID)
	lock.Lock()
	defer lock.Unlock()

	synthetic := []forecast.Alert{{Type: forecast.AlertInfo, At: now}}
	d.send(ctx, sub, synthetic)
	sub.LastDispatchAt = now
	if d.store != nil {
		d.store.SetLastDispatchAt(sub.ID, now)
	}
	d.record(ctx, sub.ID, synthetic, now)
}

// evaluate re-derives alert severity using the subscriber's own thresholds
// (which override the engine's defaults) and keeps only alerts at or above
// warning severity.
func evaluate(alerts []forecast.Alert, prefs subscription.Prefs) []forecast.Alert {
	var out []forecast.Alert
	for _, a := range alerts {
		switch a.Type {
		case forecast.AlertAQIWarning, forecast.AlertAQICritical, forecast.AlertAQIEmergency:
			t := prefs.AQIThresholds
			switch {
			case t.Emergency > 0 && a.AQI >= t.Emergency:
				a.Type = forecast.AlertAQIEmergency
			case t.Critical > 0 && a.AQI >= t.Critical:
				a.Type = forecast.AlertAQICritical
			case t.Warning > 0 && a.AQI >= t.Warning:
				a.Type = forecast.AlertAQIWarning
			default:
				continue
			}
			out = append(out, a)
		case forecast.AlertPollutantWarning, forecast.AlertPollutantCritical:
			th, ok := prefs.PerPollutantThresholds[a.Pollutant]
			if !ok {
				continue
			}
			switch {
			case th.Critical > 0 && a.Concentration >= th.Critical:
				a.Type = forecast.AlertPollutantCritical
			case th.Warning > 0 && a.Concentration >= th.Warning:
				a.Type = forecast.AlertPollutantWarning
			default:
				continue
			}
			out = append(out, a)
		default:
			out = append(out, a)
		}
	}
	return out
}

func (d *Dispatcher) send(ctx context.Context, sub *subscription.Subscriber, alerts []forecast.Alert) {
	if sub.Prefs.HasChannel(subscription.ChannelPush) && d.push != nil {
		d.push.Publish("user:"+sub.ID, map[string]any{
			"subscriberId": sub.ID,
			"alerts":       alerts,
			"at":           time.Now().UTC(),
		})
	}

	body := formatBody(sub.ID, alerts)
	if sub.Prefs.HasChannel(subscription.ChannelEmail) && d.email != nil {
		if err := d.email.Send(ctx, sub.ID, body); err != nil {
			d.logger.Warn().Err(err).Str("subscriber", sub.ID).Msg("email dispatch failed")
		}
	}
	if sub.Prefs.HasChannel(subscription.ChannelSMS) && d.sms != nil {
		if err := d.sms.Send(ctx, sub.ID, smsBody(alerts)); err != nil {
			d.logger.Warn().Err(err).Str("subscriber", sub.ID).Msg("sms dispatch failed")
		}
	}
}

func (d *Dispatcher) record(ctx context.Context, subscriberID string, alerts []forecast.Alert, now time.Time) {
	rec := DispatchRecord{SubscriberID: subscriberID, Alerts: alerts, At: now}

	d.historyMu.Lock()
	d.history.Value = rec
	d.history = d.history.Next()
	if d.histLen < HistoryCapacity {
		d.histLen++
	}
	d.historyMu.Unlock()

	if d.historySink != nil {
		if err := d.historySink.Record(ctx, rec); err != nil {
			d.logger.Warn().Err(err).Str("subscriber", subscriberID).Msg("history sink record failed")
		}
	}
}

// History returns up to limit most-recent dispatch records, newest first.
func (d *Dispatcher) History(limit int) []DispatchRecord {
	d.historyMu.Lock()
	defer d.historyMu.Unlock()

	if limit <= 0 || limit > d.histLen {
		limit = d.histLen
	}

	out := make([]DispatchRecord, 0, limit)
	cursor := d.history
	for i := 0; i < d.histLen && len(out) < limit; i++ {
		cursor = cursor.Prev()
		if cursor.Value != nil {
			out = append(out, cursor.Value.(DispatchRecord))
		}
	}
	return out
}

// HistoryFor returns up to limit most-recent dispatch records for a single
// subscriber, newest first. Walks the same ring History does, but only
// counts matching records toward limit.
func (d *Dispatcher) HistoryFor(subscriberID string, limit int) []DispatchRecord {
	d.historyMu.Lock()
	defer d.historyMu.Unlock()

	if limit <= 0 {
		limit = d.histLen
	}

	out := make([]DispatchRecord, 0, limit)
	cursor := d.history
	for i := 0; i < d.histLen && len(out) < limit; i++ {
		cursor = cursor.Prev()
		if cursor.Value == nil {
			continue
		}
		rec := cursor.Value.(DispatchRecord)
		if rec.SubscriberID == subscriberID {
			out = append(out, rec)
		}
	}
	return out
}

func formatBody(subscriberID string, alerts []forecast.Alert) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d air quality alert(s) for subscriber %s:\n", len(alerts), subscriberID)
	for _, a := range alerts {
		fmt.Fprintf(&sb, "- %s in %dh (aqi=%d)\n", severityMessage(a), a.HoursUntil, a.AQI)
	}
	return sb.String()
}

// smsBody prefers critical/emergency alerts and caps at ~160 characters.
func smsBody(alerts []forecast.Alert) string {
	var best *forecast.Alert
	for i := range alerts {
		a := &alerts[i]
		if best == nil || severityRank(a.Type) > severityRank(best.Type) {
			best = a
		}
	}
	if best == nil {
		return ""
	}
	body := fmt.Sprintf("Air quality %s: %s, %dh from now (aqi=%d).", severityLabel(best.Type), severityMessage(*best), best.HoursUntil, best.AQI)
	if len(body) > 160 {
		body = body[:157] + "..."
	}
	return body
}

func severityRank(t string) int {
	switch t {
	case forecast.AlertAQIEmergency:
		return 3
	case forecast.AlertAQICritical, forecast.AlertPollutantCritical:
		return 2
	case forecast.AlertAQIWarning, forecast.AlertPollutantWarning:
		return 1
	default:
		return 0
	}
}

func severityLabel(t string) string {
	switch t {
	case forecast.AlertAQIEmergency:
		return "emergency"
	case forecast.AlertAQICritical, forecast.AlertPollutantCritical:
		return "critical"
	case forecast.AlertAQIWarning, forecast.AlertPollutantWarning:
		return "warning"
	default:
		return "notice"
	}
}

func severityMessage(a forecast.Alert) string {
	if a.Pollutant != "" {
		return fmt.Sprintf("%s levels %s", a.Pollutant, severityLabel(a.Type))
	}
	return fmt.Sprintf("AQI %s", severityLabel(a.Type))
}
