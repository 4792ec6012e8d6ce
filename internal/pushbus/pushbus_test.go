package pushbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/skywatch/internal/pushbus"
)

func TestJoinPublish_DeliversToAllRoomMembers(t *testing.T) {
	hub := pushbus.NewHub(zerolog.Nop())
	subA := hub.Join("room-1", "a")
	subB := hub.Join("room-1", "b")
	defer subA.Close()
	defer subB.Close()

	hub.Publish("room-1", "hello")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	evA, ok := subA.Recv(ctx)
	require.True(t, ok)
	assert.Equal(t, "hello", evA.Data)

	evB, ok := subB.Recv(ctx)
	require.True(t, ok)
	assert.Equal(t, "hello", evB.Data)
}

func TestPublish_OnlyReachesJoinedRoom(t *testing.T) {
	hub := pushbus.NewHub(zerolog.Nop())
	sub := hub.Join("room-1", "a")
	defer sub.Close()

	hub.Publish("room-2", "irrelevant")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := sub.Recv(ctx)
	assert.False(t, ok, "subscriber must not receive events for a different room")
}

// TestScenarioS6_SlowSubscriberDropsOldestFastSubscriberReceivesAll mirrors
// the push bus backpressure scenario: 200 events published to a room with
// two subscribers, one of which never drains. The slow subscriber ends up
// with exactly the outbox capacity worth of (the most recent) events and a
// matching drop count; the actively-draining subscriber receives all 200,
// in order.
func TestScenarioS6_SlowSubscriberDropsOldestFastSubscriberReceivesAll(t *testing.T) {
	hub := pushbus.NewHub(zerolog.Nop())
	slow := hub.Join("room-1", "slow")
	fast := hub.Join("room-1", "fast")
	defer slow.Close()
	defer fast.Close()

	const total = 200
	drained := make(chan int, total)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := 0; i < total; i++ {
			ev, ok := fast.Recv(ctx)
			if !ok {
				return
			}
			drained <- ev.Data.(int)
		}
	}()

	for i := 0; i < total; i++ {
		hub.Publish("room-1", i)
	}

	<-done
	close(drained)

	var got []int
	for v := range drained {
		got = append(got, v)
	}
	require.Len(t, got, total)
	for i, v := range got {
		assert.Equal(t, i, v, "fast subscriber must receive every event in order")
	}

	assert.Equal(t, int64(total-pushbus.OutboxCapacity), slow.Dropped())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var slowGot []int
	for {
		ev, ok := slow.Recv(ctx)
		if !ok {
			break
		}
		slowGot = append(slowGot, ev.Data.(int))
		if len(slowGot) == pushbus.OutboxCapacity {
			break
		}
	}
	require.Len(t, slowGot, pushbus.OutboxCapacity)
	for i, v := range slowGot {
		assert.Equal(t, total-pushbus.OutboxCapacity+i, v, "retained events must be the most recent, in order")
	}
}

func TestClose_UnblocksPendingRecv(t *testing.T) {
	hub := pushbus.NewHub(zerolog.Nop())
	sub := hub.Join("room-1", "a")

	result := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, ok := sub.Recv(ctx)
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Close()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestLeave_RemovesEmptyRoom(t *testing.T) {
	hub := pushbus.NewHub(zerolog.Nop())
	sub := hub.Join("room-1", "a")
	require.Equal(t, 1, hub.RoomSize("room-1"))
	sub.Close()
	assert.Equal(t, 0, hub.RoomSize("room-1"))
}
