package storage

import (
	"context"
	"fmt"

	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
)

// InsertAuctionEvent records a bid event in the audit log. The event id
// is the conflict key, so at-least-once delivery from the queue stays
// idempotent.
func (d *DB) InsertAuctionEvent(ctx context.Context, e *models.AuctionEvent) error {
	query := `
		INSERT INTO auction_events (event_id, auction_id, shop_domain, bidder,
			amount, previous_bid, auction_ended, buy_now, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := d.db.ExecContext(ctx, query,
		e.EventID, e.AuctionID, e.ShopDomain, e.Bidder,
		e.Amount, e.PreviousBid, e.AuctionEnded, e.BuyNow, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert auction event: %w", err)
	}

	return nil
}
