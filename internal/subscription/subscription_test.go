package subscription_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/skywatch/internal/subscription"
	"github.com/skywatch/skywatch/pkg/geo"
)

func TestSubscribe_NewInsertResetsLastDispatch(t *testing.T) {
	reg := subscription.NewRegistry()
	sub := reg.Subscribe("sub-1", subscription.Location{Lat: 52, Lng: 4, RadiusKm: 10}, subscription.Prefs{Enabled: true})
	assert.True(t, sub.LastDispatchAt.IsZero())
}

func TestSubscribe_ExistingPreservesLastDispatch(t *testing.T) {
	reg := subscription.NewRegistry()
	reg.Subscribe("sub-1", subscription.Location{Lat: 52, Lng: 4, RadiusKm: 10}, subscription.Prefs{Enabled: true})

	now := time.Now()
	reg.SetLastDispatchAt("sub-1", now)

	updated := reg.Subscribe("sub-1", subscription.Location{Lat: 53, Lng: 5, RadiusKm: 20}, subscription.Prefs{Enabled: false})
	assert.Equal(t, now, updated.LastDispatchAt)
	assert.Equal(t, 20.0, updated.Location.RadiusKm)
}

func TestUnsubscribe_RemovesSubscriber(t *testing.T) {
	reg := subscription.NewRegistry()
	reg.Subscribe("sub-1", subscription.Location{Lat: 52, Lng: 4, RadiusKm: 10}, subscription.Prefs{})
	reg.Unsubscribe("sub-1")

	_, err := reg.Get("sub-1")
	assert.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestUpdatePrefs_MergesOnlyProvidedFields(t *testing.T) {
	reg := subscription.NewRegistry()
	reg.Subscribe("sub-1", subscription.Location{Lat: 52, Lng: 4, RadiusKm: 10}, subscription.Prefs{
		Enabled:  true,
		Channels: map[subscription.Channel]bool{subscription.ChannelPush: true},
	})

	newEnabled := false
	updated, err := reg.UpdatePrefs("sub-1", subscription.PrefsPatch{Enabled: &newEnabled})
	require.NoError(t, err)

	assert.False(t, updated.Prefs.Enabled)
	assert.True(t, updated.Prefs.Channels[subscription.ChannelPush], "unrelated fields must survive the merge")
}

func TestUpdatePrefs_UnknownSubscriberErrors(t *testing.T) {
	reg := subscription.NewRegistry()
	_, err := reg.UpdatePrefs("ghost", subscription.PrefsPatch{})
	assert.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestWithinRadius_MatchesOnlyNearbySubscribers(t *testing.T) {
	reg := subscription.NewRegistry()
	reg.Subscribe("near", subscription.Location{Lat: 52.01, Lng: 4.01, RadiusKm: 50}, subscription.Prefs{})
	reg.Subscribe("far", subscription.Location{Lat: 10, Lng: 10, RadiusKm: 50}, subscription.Prefs{})

	matches := reg.WithinRadius(geo.Point{Lat: 52.0, Lng: 4.0})
	require.Len(t, matches, 1)
	assert.Equal(t, "near", matches[0].ID)
}

func TestWithinRadius_ZeroRadiusNeverMatches(t *testing.T) {
	reg := subscription.NewRegistry()
	reg.Subscribe("zero-radius", subscription.Location{Lat: 52.0, Lng: 4.0, RadiusKm: 0}, subscription.Prefs{})

	matches := reg.WithinRadius(geo.Point{Lat: 52.0, Lng: 4.0})
	assert.Empty(t, matches)
}

func TestGet_ReturnsIndependentCopy(t *testing.T) {
	reg := subscription.NewRegistry()
	reg.Subscribe("sub-1", subscription.Location{Lat: 52, Lng: 4, RadiusKm: 10}, subscription.Prefs{
		Channels: map[subscription.Channel]bool{subscription.ChannelPush: true},
	})

	sub, err := reg.Get("sub-1")
	require.NoError(t, err)
	sub.Prefs.Channels[subscription.ChannelEmail] = true

	sub2, _ := reg.Get("sub-1")
	assert.False(t, sub2.Prefs.Channels[subscription.ChannelEmail], "mutating a returned copy must not affect the registry")
}
