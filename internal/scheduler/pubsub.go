package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/skywatch/skywatch/pkg/geo"
)

// PubSubTrigger wires an external Pub/Sub subscription to Scheduler.Trigger,
// so an on-demand refresh can be requested without waiting for the next
// ticker cadence. Mirrors the teacher's worker.PubSubHandler.
type PubSubTrigger struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	scheduler        *Scheduler
	logger           zerolog.Logger
}

// PubSubTriggerConfig configures a PubSubTrigger.
type PubSubTriggerConfig struct {
	ProjectID        string
	SubscriptionName string
	Scheduler        *Scheduler
	Logger           zerolog.Logger
}

// RefreshMessage is the envelope a trigger publisher sends. Every message
// runs one sweep over all hot locations; RefreshAll is only logged. If Lat
// and Lng are both set, that point is first recorded in RecentLocations (when
// configured) so the sweep includes it.
type RefreshMessage struct {
	RefreshAll bool     `json:"refresh_all,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

// NewPubSubTrigger creates a PubSubTrigger.
func NewPubSubTrigger(ctx context.Context, cfg PubSubTriggerConfig) (*PubSubTrigger, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 2 * time.Minute

	return &PubSubTrigger{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		scheduler:        cfg.Scheduler,
		logger:           cfg.Logger,
	}, nil
}

// Listen blocks, receiving trigger messages until ctx is canceled.
func (t *PubSubTrigger) Listen(ctx context.Context) error {
	return t.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var rm RefreshMessage
		if err := json.Unmarshal(msg.Data, &rm); err != nil {
			t.logger.Error().Err(err).Msg("invalid refresh message, dropping")
			msg.Ack()
			return
		}

		t.logger.Info().Bool("refresh_all", rm.RefreshAll).Msg("pubsub-triggered refresh")

		triggerCtx, cancel := context.WithTimeout(ctx, t.scheduler.cfg.FetchTimeout*time.Duration(t.scheduler.cfg.Concurrency))
		defer cancel()

		if rm.Lat != nil && rm.Lng != nil && t.scheduler.cfg.RecentLocations != nil {
			t.scheduler.cfg.RecentLocations.Touch(geo.Point{Lat: *rm.Lat, Lng: *rm.Lng}, time.Now())
		}
		t.scheduler.Trigger(triggerCtx)
		msg.Ack()
	})
}

// Close releases the underlying Pub/Sub client.
func (t *PubSubTrigger) Close() error {
	return t.client.Close()
}
