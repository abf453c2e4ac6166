package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Message is one auction update received over pub/sub. The payload is
// forwarded to WebSocket clients verbatim.
type Message struct {
	AuctionID string
	Payload   string
}

// Subscriber consumes auction update channels for the broadcast service.
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
	log    *zap.Logger
}

// NewSubscriber creates a Redis pub/sub subscriber.
func NewSubscriber(addr, password string, db int, log *zap.Logger) (*Subscriber, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Subscriber{client: rdb, log: log}, nil
}

// SubscribeAll subscribes to every auction's update channel.
func (s *Subscriber) SubscribeAll(ctx context.Context) error {
	s.pubsub = s.client.PSubscribe(ctx, ChannelPrefix+"*")
	return nil
}

// Listen forwards pub/sub messages to messageChan until the context is
// cancelled. Blocking; run in a goroutine.
func (s *Subscriber) Listen(ctx context.Context, messageChan chan<- *Message) error {
	if s.pubsub == nil {
		return fmt.Errorf("not subscribed to any channel")
	}

	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			auctionID := strings.TrimPrefix(msg.Channel, ChannelPrefix)
			if auctionID == msg.Channel {
				s.log.Warn("message on unexpected channel", zap.String("channel", msg.Channel))
				continue
			}

			messageChan <- &Message{
				AuctionID: auctionID,
				Payload:   msg.Payload,
			}
		}
	}
}

// Close closes the subscriber.
func (s *Subscriber) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	return s.client.Close()
}
