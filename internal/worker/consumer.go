// Package worker consumes auction events from NATS JetStream and
// persists them to the audit log.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/bidlyapplaunch/bidly-sub001/internal/events"
	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
	"github.com/bidlyapplaunch/bidly-sub001/internal/storage"
)

const consumerName = "bidly-archiver"

// Consumer pulls auction events off JetStream and writes audit rows.
type Consumer struct {
	conn *nats.Conn
	db   *storage.DB
	log  *zap.Logger
}

// NewConsumer connects to NATS.
func NewConsumer(natsURL string, db *storage.DB, log *zap.Logger) (*Consumer, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Consumer{conn: conn, db: db, log: log}, nil
}

// Run consumes events until the context is cancelled. The stream is
// created if missing so the worker can start before the API server.
func (c *Consumer) Run(ctx context.Context) error {
	js, err := jetstream.New(c.conn)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, events.StreamConfig())
	if err != nil {
		return fmt.Errorf("failed to create/update stream: %w", err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   consumerName,
		AckPolicy: jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	c.log.Info("consuming auction events", zap.String("stream", events.StreamName))

	<-ctx.Done()
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var event models.AuctionEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		c.log.Error("failed to unmarshal event, dropping", zap.Error(err))
		// Terminate so the malformed message is not redelivered forever.
		msg.Term()
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.db.InsertAuctionEvent(dbCtx, &event); err != nil {
		c.log.Error("failed to persist event",
			zap.String("event_id", event.EventID.String()), zap.Error(err))
		// No ack: the message will be redelivered and the insert is
		// idempotent on event_id.
		msg.Nak()
		return
	}

	c.log.Info("persisted auction event",
		zap.String("event_id", event.EventID.String()),
		zap.String("auction_id", event.AuctionID.String()),
		zap.String("bidder", event.Bidder),
		zap.Float64("amount", event.Amount))

	msg.Ack()
}

// Close closes the NATS connection.
func (c *Consumer) Close() {
	c.conn.Close()
}
