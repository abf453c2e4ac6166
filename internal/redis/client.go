// Package redis holds the current-bid read cache and the pub/sub
// transport between the API server and the broadcast service.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix is the pub/sub channel namespace, keyed by auction id.
const ChannelPrefix = "auction_updates:"

// Client wraps the Redis client with auction-specific operations.
// The cache serves the storefront polling path; PostgreSQL stays the
// arbiter of which bid wins.
type Client struct {
	client *redis.Client
	// Lua script for a monotonic set-if-greater cache update, so a late
	// event cannot regress the cached current bid.
	raiseScript *redis.Script
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// KEYS[1]: auction:{id}:current_bid
	// ARGV[1]: accepted bid amount
	raiseScript := redis.NewScript(`
		local current = tonumber(redis.call('GET', KEYS[1]) or '0')
		local amount = tonumber(ARGV[1])
		if amount > current then
			redis.call('SET', KEYS[1], ARGV[1])
			return 1
		end
		return 0
	`)

	return &Client{
		client:      rdb,
		raiseScript: raiseScript,
	}, nil
}

// Cache keys carry the shop domain so a hit can only ever serve the
// owning tenant.
func bidKey(shopDomain, auctionID string) string {
	return fmt.Sprintf("auction:%s:%s:current_bid", shopDomain, auctionID)
}

// GetCurrentBid returns the cached current bid for an auction. The bool
// reports whether a cache entry exists.
func (c *Client) GetCurrentBid(ctx context.Context, shopDomain, auctionID string) (float64, bool, error) {
	val, err := c.client.Get(ctx, bidKey(shopDomain, auctionID)).Float64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cached bid: %w", err)
	}
	return val, true, nil
}

// RaiseCurrentBid moves the cached current bid up to amount, atomically
// and only upward.
func (c *Client) RaiseCurrentBid(ctx context.Context, shopDomain, auctionID string, amount float64) error {
	if err := c.raiseScript.Run(ctx, c.client, []string{bidKey(shopDomain, auctionID)}, amount).Err(); err != nil {
		return fmt.Errorf("failed to raise cached bid: %w", err)
	}
	return nil
}

// ResetCurrentBid overwrites the cache entry unconditionally. Used on
// relist, where the current bid legitimately goes back to zero.
func (c *Client) ResetCurrentBid(ctx context.Context, shopDomain, auctionID string, amount float64) error {
	if err := c.client.Set(ctx, bidKey(shopDomain, auctionID), amount, 0).Err(); err != nil {
		return fmt.Errorf("failed to reset cached bid: %w", err)
	}
	return nil
}

// RemoveCurrentBid drops the cache entry, for deleted auctions.
func (c *Client) RemoveCurrentBid(ctx context.Context, shopDomain, auctionID string) error {
	if err := c.client.Del(ctx, bidKey(shopDomain, auctionID)).Err(); err != nil {
		return fmt.Errorf("failed to remove cached bid: %w", err)
	}
	return nil
}

// PublishAuctionEvent publishes an event to the auction's pub/sub
// channel. The broadcast service forwards it to WebSocket subscribers.
func (c *Client) PublishAuctionEvent(ctx context.Context, auctionID string, event interface{}) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return c.client.Publish(ctx, ChannelPrefix+auctionID, eventJSON).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
