package alert_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/skywatch/internal/alert"
	"github.com/skywatch/skywatch/internal/aqi"
	"github.com/skywatch/skywatch/internal/forecast"
	"github.com/skywatch/skywatch/internal/subscription"
)

type fakePublisher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakePublisher) Publish(room string, event any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func enabledSubscriber(id string, warning int) *subscription.Subscriber {
	return &subscription.Subscriber{
		ID: id,
		Prefs: subscription.Prefs{
			Enabled:       true,
			AQIThresholds: subscription.AQIThresholds{Warning: warning, Critical: 151, Emergency: 201},
			Channels:      map[subscription.Channel]bool{subscription.ChannelPush: true},
		},
	}
}

func forecastWithAQIAt(hour, value int, now time.Time) *forecast.Forecast {
	return &forecast.Forecast{
		Alerts: []forecast.Alert{
			{Type: forecast.AlertAQIWarning, HoursUntil: hour, AQI: value, At: now.Add(time.Duration(hour) * time.Hour)},
		},
	}
}

// TestDispatch_Invariant9_CooldownAllowsExactlyOneSend verifies that two
// Dispatch calls within the cooldown window result in exactly one outbound
// send.
func TestDispatch_Invariant9_CooldownAllowsExactlyOneSend(t *testing.T) {
	pub := &fakePublisher{}
	d := alert.NewDispatcher(alert.Config{Cooldown: time.Hour, Push: pub})
	sub := enabledSubscriber("sub-1", 100)
	now := time.Now()

	dispatched1, err := d.Dispatch(context.Background(), forecastWithAQIAt(3, 130, now), sub, now)
	require.NoError(t, err)
	assert.True(t, dispatched1)

	dispatched2, err := d.Dispatch(context.Background(), forecastWithAQIAt(3, 140, now.Add(20*time.Minute)), sub, now.Add(20*time.Minute))
	require.NoError(t, err)
	assert.False(t, dispatched2, "second dispatch within cooldown must be skipped")

	assert.Equal(t, 1, pub.count())
}

// TestDispatch_ScenarioS5_ExactlyTwoDispatchesAcrossThreeForecasts mirrors
// the cooldown scenario: forecasts at t=0, t=+20min, t=+65min, cooldown=1h,
// warning threshold=100. Expect dispatches at t=0 and t=+65min only.
// TestDispatch_ScenarioS5_ExactlyTwoDispatchesAcrossThreeForecasts drives the
// cooldown through a subscription.Registry, as production wiring does
// (Scheduler re-fetches the subscriber on every sweep via WithinRadius/Get,
// never reusing one *Subscriber across calls), so a Dispatcher that forgets
// to persist LastDispatchAt back to the registry fails this test.
func TestDispatch_ScenarioS5_ExactlyTwoDispatchesAcrossThreeForecasts(t *testing.T) {
	pub := &fakePublisher{}
	registry := subscription.NewRegistry()
	registry.Subscribe("sub-1", subscription.Location{Lat: 1, Lng: 1, RadiusKm: 10}, subscription.Prefs{
		Enabled:       true,
		AQIThresholds: subscription.AQIThresholds{Warning: 100, Critical: 151, Emergency: 201},
		Channels:      map[subscription.Channel]bool{subscription.ChannelPush: true},
	})
	d := alert.NewDispatcher(alert.Config{Cooldown: time.Hour, Push: pub, Store: registry})
	t0 := time.Now()

	sub, err := registry.Get("sub-1")
	require.NoError(t, err)
	d1, err := d.Dispatch(context.Background(), forecastWithAQIAt(3, 130, t0), sub, t0)
	require.NoError(t, err)

	sub, err = registry.Get("sub-1")
	require.NoError(t, err)
	d2, err := d.Dispatch(context.Background(), forecastWithAQIAt(2, 140, t0), sub, t0.Add(20*time.Minute))
	require.NoError(t, err)

	sub, err = registry.Get("sub-1")
	require.NoError(t, err)
	d3, err := d.Dispatch(context.Background(), forecastWithAQIAt(1, 105, t0), sub, t0.Add(65*time.Minute))
	require.NoError(t, err)

	assert.True(t, d1)
	assert.False(t, d2)
	assert.True(t, d3)

	history := d.History(0)
	require.Len(t, history, 2, "exactly two dispatches must be recorded in history")
}

func TestDispatch_SkipsDisabledSubscriber(t *testing.T) {
	pub := &fakePublisher{}
	d := alert.NewDispatcher(alert.Config{Push: pub})
	sub := enabledSubscriber("sub-1", 100)
	sub.Prefs.Enabled = false
	now := time.Now()

	dispatched, err := d.Dispatch(context.Background(), forecastWithAQIAt(1, 200, now), sub, now)
	require.NoError(t, err)
	assert.False(t, dispatched)
	assert.Equal(t, 0, pub.count())
}

func TestDispatch_NoMatchingAlertsDoesNotRecordHistory(t *testing.T) {
	pub := &fakePublisher{}
	d := alert.NewDispatcher(alert.Config{Push: pub})
	sub := enabledSubscriber("sub-1", 200) // subscriber's own threshold is higher than the forecast's
	now := time.Now()

	dispatched, err := d.Dispatch(context.Background(), forecastWithAQIAt(1, 130, now), sub, now)
	require.NoError(t, err)
	assert.False(t, dispatched)
	assert.Empty(t, d.History(0))
}

func TestDispatch_SubscriberThresholdOverridesForecastDefault(t *testing.T) {
	pub := &fakePublisher{}
	d := alert.NewDispatcher(alert.Config{Push: pub})
	// Subscriber's own warning threshold (50) is far below the forecast's
	// classification (which fired at the engine's default of 101+), so a
	// moderate AQI that the engine wouldn't normally flag should still fire.
	sub := enabledSubscriber("sub-1", 50)
	now := time.Now()

	dispatched, err := d.Dispatch(context.Background(), forecastWithAQIAt(1, 60, now), sub, now)
	require.NoError(t, err)
	assert.True(t, dispatched)
}

type recordingSink struct {
	mu   sync.Mutex
	body string
}

func (r *recordingSink) Send(ctx context.Context, subscriberID, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = body
	return nil
}

func TestDispatch_EmailChannelReceivesFormattedBody(t *testing.T) {
	email := &recordingSink{}
	d := alert.NewDispatcher(alert.Config{Email: email})
	sub := enabledSubscriber("sub-1", 100)
	sub.Prefs.Channels = map[subscription.Channel]bool{subscription.ChannelEmail: true}
	now := time.Now()

	_, err := d.Dispatch(context.Background(), forecastWithAQIAt(1, 150, now), sub, now)
	require.NoError(t, err)

	email.mu.Lock()
	defer email.mu.Unlock()
	assert.Contains(t, email.body, "sub-1")
}

func TestDispatch_PollutantAlertUsesSubscriberPerPollutantThreshold(t *testing.T) {
	pub := &fakePublisher{}
	d := alert.NewDispatcher(alert.Config{Push: pub})
	sub := enabledSubscriber("sub-1", 1000) // AQI threshold irrelevant here
	sub.Prefs.PerPollutantThresholds = map[aqi.Pollutant]subscription.PollutantThreshold{
		aqi.PM25: {Warning: 10, Critical: 20},
	}
	now := time.Now()

	f := &forecast.Forecast{
		Alerts: []forecast.Alert{
			{Type: forecast.AlertPollutantWarning, Pollutant: aqi.PM25, HoursUntil: 1, Concentration: 15, At: now.Add(time.Hour)},
		},
	}

	dispatched, err := d.Dispatch(context.Background(), f, sub, now)
	require.NoError(t, err)
	assert.True(t, dispatched)
}

func TestTest_BypassesCooldownAndDispatchesInfoAlert(t *testing.T) {
	pub := &fakePublisher{}
	d := alert.NewDispatcher(alert.Config{Cooldown: time.Hour, Push: pub})
	sub := enabledSubscriber("sub-1", 100)
	now := time.Now()

	_, err := d.Dispatch(context.Background(), forecastWithAQIAt(1, 150, now), sub, now)
	require.NoError(t, err)

	d.Test(context.Background(), sub, now.Add(time.Minute))

	assert.Equal(t, 2, pub.count())
	history := d.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, forecast.AlertInfo, history[0].Alerts[0].Type)
}
