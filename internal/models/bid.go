package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid is a single accepted bid on an auction. History is append-only;
// rejected bids are never recorded.
type Bid struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auction_id"`
	Bidder    string    `json:"bidder"`
	Amount    float64   `json:"amount"`
	PlacedAt  time.Time `json:"timestamp"`
}

// BidRequest is the incoming bid payload.
type BidRequest struct {
	Bidder string  `json:"bidder"`
	Amount float64 `json:"amount"`
}

// BuyNowRequest is the incoming buy-now payload.
type BuyNowRequest struct {
	Bidder string `json:"bidder"`
}

// AuctionEvent is published after every accepted state change.
// It is sent to:
//  1. Redis Pub/Sub (real-time WebSocket broadcast)
//  2. NATS JetStream (archival into the audit log)
type AuctionEvent struct {
	EventID      uuid.UUID `json:"event_id"`
	AuctionID    uuid.UUID `json:"auction_id"`
	ShopDomain   string    `json:"shop_domain"`
	Bidder       string    `json:"bidder"`
	Amount       float64   `json:"amount"`
	PreviousBid  float64   `json:"previous_bid"`
	CurrentBid   float64   `json:"current_bid"`
	BidHistory   []Bid     `json:"bid_history,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	AuctionEnded bool      `json:"auction_ended"`
	Winner       string    `json:"winner,omitempty"`
	BuyNow       bool      `json:"buy_now"`
}
