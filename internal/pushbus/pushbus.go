// Package pushbus implements the Push Bus: an in-process, room-based fan-out
// hub. Every client gets a bounded outbox so one slow reader can never stall
// a publisher; once an outbox is full the oldest queued event is dropped to
// make room for the newest.
package pushbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// OutboxCapacity bounds how many undelivered events a single client queue
// holds before the oldest is dropped.
const OutboxCapacity = 64

// Event is one message published to a room.
type Event struct {
	Room string
	Data any
}

// client is one joined subscriber's bounded, ordered outbox.
type client struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []Event
	closed  bool
	dropped int64
}

func newClient() *client {
	c := &client{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// push appends ev, dropping the oldest queued event if the outbox is full.
func (c *client) push(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if len(c.buf) >= OutboxCapacity {
		c.buf = c.buf[1:]
		atomic.AddInt64(&c.dropped, 1)
	}
	c.buf = append(c.buf, ev)
	c.cond.Signal()
}

// recv blocks until an event is available, ctx is done, or the client is
// closed. Preserves FIFO order.
func (c *client) recv(ctx context.Context) (Event, bool) {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(done)
		c.cond.Broadcast()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.buf) == 0 && !c.closed {
		select {
		case <-done:
			return Event{}, false
		default:
		}
		c.cond.Wait()
	}
	if len(c.buf) == 0 {
		return Event{}, false
	}
	ev := c.buf[0]
	c.buf = c.buf[1:]
	return ev, true
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

func (c *client) droppedCount() int64 {
	return atomic.LoadInt64(&c.dropped)
}

// Subscription is a live handle returned by Join. Recv drains the client's
// outbox; Close must be called when the subscriber disconnects.
type Subscription struct {
	hub      *Hub
	room     string
	clientID string
	c        *client
}

// Recv blocks until the next event, ctx cancellation, or Close. The second
// return value is false once the subscription is closed and drained.
func (s *Subscription) Recv(ctx context.Context) (Event, bool) {
	return s.c.recv(ctx)
}

// Dropped reports how many events this subscription has dropped due to a
// full outbox.
func (s *Subscription) Dropped() int64 {
	return s.c.droppedCount()
}

// Close unsubscribes and releases the underlying outbox.
func (s *Subscription) Close() {
	s.hub.Leave(s.room, s.clientID)
	s.c.close()
}

// Hub is the Push Bus. Safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*client
	logger zerolog.Logger
}

// NewHub constructs an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{rooms: make(map[string]map[string]*client), logger: logger}
}

// Join subscribes clientID to room and returns a handle to receive events.
// Joining the same room/clientID twice replaces the prior subscription.
func (h *Hub) Join(room, clientID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[room]
	if !ok {
		clients = make(map[string]*client)
		h.rooms[room] = clients
	}
	c := newClient()
	clients[clientID] = c

	return &Subscription{hub: h, room: room, clientID: clientID, c: c}
}

// Leave removes clientID from room. A no-op if not subscribed.
func (h *Hub) Leave(room, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(clients, clientID)
	if len(clients) == 0 {
		delete(h.rooms, room)
	}
}

// Publish fans ev out to every client currently joined to room. Publish
// never blocks: a full outbox drops its oldest event rather than stalling.
func (h *Hub) Publish(room string, data any) {
	h.mu.RLock()
	clients := h.rooms[room]
	targets := make([]*client, 0, len(clients))
	for _, c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	ev := Event{Room: room, Data: data}
	for _, c := range targets {
		before := c.droppedCount()
		c.push(ev)
		if c.droppedCount() > before {
			h.logger.Warn().Str("room", room).Msg("push bus outbox full, dropped oldest event")
		}
	}
}

// RoomSize reports how many clients are currently joined to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
