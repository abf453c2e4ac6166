package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the stored administrative status of an auction. The phase a
// caller actually sees is recomputed from the time window on every read;
// see the lifecycle package.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusClosed  Status = "closed"
)

// Auction is a time-windowed auction for a single Shopify product,
// scoped to the installing store.
type Auction struct {
	ID               uuid.UUID        `json:"id"`
	ShopDomain       string           `json:"shop_domain"`
	ShopifyProductID string           `json:"shopify_product_id"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	StartingBid      float64          `json:"starting_bid"`
	CurrentBid       float64          `json:"current_bid"`
	BuyNowPrice      float64          `json:"buy_now_price,omitempty"` // 0 = no buy-now
	HighestBidder    string           `json:"highest_bidder,omitempty"`
	Status           Status           `json:"status"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	Product          *ProductSnapshot `json:"product_data,omitempty"`
	BidCount         int              `json:"bid_count"`
	Bids             []Bid            `json:"bid_history,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// HasBids reports whether at least one bid has been recorded. Once true,
// the product reference, starting bid and time window are frozen and the
// auction can no longer be deleted or relisted.
func (a *Auction) HasBids() bool {
	return a.BidCount > 0
}

// HasBuyNow reports whether a buy-now price is configured.
func (a *Auction) HasBuyNow() bool {
	return a.BuyNowPrice > 0
}

// ProductSnapshot is a denormalized cache of the Shopify product embedded
// in the auction at creation time. Staleness is tolerated; the catalog
// remains the source of truth.
type ProductSnapshot struct {
	Title     string    `json:"title"`
	ImageURL  string    `json:"image_url,omitempty"`
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CreateAuctionRequest is the payload for creating an auction.
type CreateAuctionRequest struct {
	ShopifyProductID string    `json:"shopify_product_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	StartingBid      float64   `json:"starting_bid"`
	BuyNowPrice      float64   `json:"buy_now_price"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
}

// UpdateAuctionRequest carries a partial update. Nil fields are left
// unchanged.
type UpdateAuctionRequest struct {
	ShopifyProductID *string    `json:"shopify_product_id"`
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	StartingBid      *float64   `json:"starting_bid"`
	BuyNowPrice      *float64   `json:"buy_now_price"`
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	Status           *Status    `json:"status"`
}

// RelistAuctionRequest reopens a finished, bid-free auction with a new
// time window.
type RelistAuctionRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// AuctionFilter narrows auction listings.
type AuctionFilter struct {
	Status Status // empty = any
	Skip   int
	Limit  int
}
