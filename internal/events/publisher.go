// Package events publishes accepted auction state changes to the
// real-time and archival transports.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
	redisclient "github.com/bidlyapplaunch/bidly-sub001/internal/redis"
)

const (
	// StreamName is the JetStream stream backing the audit log.
	StreamName = "AUCTION_EVENTS"
	// SubjectPrefix namespaces archival subjects by auction id.
	SubjectPrefix = "auction.events."
)

// Publisher fans accepted bids out to Redis pub/sub (real-time UI
// refresh) and NATS JetStream (durable archival). Neither path carries a
// delivery guarantee toward the bidder; the HTTP response never waits on
// either.
type Publisher struct {
	redis *redisclient.Client
	js    jetstream.JetStream
}

// NewPublisher creates a publisher and ensures the archival stream
// exists.
func NewPublisher(redis *redisclient.Client, natsConn *nats.Conn) (*Publisher, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := js.CreateOrUpdateStream(ctx, StreamConfig()); err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &Publisher{redis: redis, js: js}, nil
}

// StreamConfig is the archival stream definition, shared with the worker
// so either side can start first.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Stream for auction event archival",
		Subjects:    []string{SubjectPrefix + "*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	}
}

// PublishRealtime sends the event to the auction's pub/sub channel.
func (p *Publisher) PublishRealtime(ctx context.Context, event *models.AuctionEvent) error {
	return p.redis.PublishAuctionEvent(ctx, event.AuctionID.String(), event)
}

// PublishArchive persists the event to JetStream. The publish waits for
// the server ack so the message is stored before returning.
func (p *Publisher) PublishArchive(ctx context.Context, event *models.AuctionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := SubjectPrefix + event.AuctionID.String()
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	return nil
}
