package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bidlyapplaunch/bidly-sub001/internal/errs"
	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
)

const auctionColumns = `id, shop_domain, shopify_product_id, title, description,
	starting_bid, current_bid, buy_now_price, highest_bidder, status,
	start_time, end_time, product_title, product_image, product_price,
	product_fetched_at, created_at, updated_at,
	(SELECT COUNT(*) FROM bids b WHERE b.auction_id = auctions.id) AS bid_count`

// BidAcceptance carries everything the conditional bid update needs.
type BidAcceptance struct {
	AuctionID   uuid.UUID
	ShopDomain  string
	Bidder      string
	Amount      float64
	Now         time.Time
	EndsAuction bool
}

// CreateAuction inserts a new auction row.
func (d *DB) CreateAuction(ctx context.Context, a *models.Auction) error {
	query := `
		INSERT INTO auctions (id, shop_domain, shopify_product_id, title, description,
			starting_bid, current_bid, buy_now_price, status, start_time, end_time,
			product_title, product_image, product_price, product_fetched_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`

	var pTitle, pImage sql.NullString
	var pPrice sql.NullFloat64
	var pFetched sql.NullTime
	if a.Product != nil {
		pTitle = sql.NullString{String: a.Product.Title, Valid: true}
		pImage = sql.NullString{String: a.Product.ImageURL, Valid: a.Product.ImageURL != ""}
		pPrice = sql.NullFloat64{Float64: a.Product.Price, Valid: true}
		pFetched = sql.NullTime{Time: a.Product.FetchedAt, Valid: true}
	}

	_, err := d.db.ExecContext(ctx, query,
		a.ID, a.ShopDomain, a.ShopifyProductID, a.Title, a.Description,
		a.StartingBid, a.BuyNowPrice, a.Status, a.StartTime, a.EndTime,
		pTitle, pImage, pPrice, pFetched, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert auction: %w", err)
	}

	return nil
}

// GetAuction loads one auction scoped to the store.
func (d *DB) GetAuction(ctx context.Context, shopDomain string, id uuid.UUID) (*models.Auction, error) {
	query := fmt.Sprintf(`SELECT %s FROM auctions WHERE id = $1 AND shop_domain = $2`, auctionColumns)

	a, err := scanAuction(d.db.QueryRowContext(ctx, query, id, shopDomain))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query auction: %w", err)
	}

	return a, nil
}

// ListAuctions returns the store's auctions, newest first.
func (d *DB) ListAuctions(ctx context.Context, shopDomain string, f models.AuctionFilter) ([]models.Auction, error) {
	query := fmt.Sprintf(`SELECT %s FROM auctions WHERE shop_domain = $1`, auctionColumns)
	args := []interface{}{shopDomain}

	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Skip > 0 {
		args = append(args, f.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	defer rows.Close()

	var auctions []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, *a)
	}

	return auctions, rows.Err()
}

// ListBids returns an auction's bid history, oldest first.
func (d *DB) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	query := `
		SELECT id, auction_id, bidder, amount, placed_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY placed_at ASC
	`

	rows, err := d.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.Bidder, &b.Amount, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}

	return bids, rows.Err()
}

// UpdateAuction writes the mutable columns of an auction.
func (d *DB) UpdateAuction(ctx context.Context, a *models.Auction) error {
	query := `
		UPDATE auctions
		SET shopify_product_id = $3,
		    title = $4,
		    description = $5,
		    starting_bid = $6,
		    buy_now_price = $7,
		    status = $8,
		    start_time = $9,
		    end_time = $10,
		    product_title = $11,
		    product_image = $12,
		    product_price = $13,
		    product_fetched_at = $14,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND shop_domain = $2
	`

	var pTitle, pImage sql.NullString
	var pPrice sql.NullFloat64
	var pFetched sql.NullTime
	if a.Product != nil {
		pTitle = sql.NullString{String: a.Product.Title, Valid: true}
		pImage = sql.NullString{String: a.Product.ImageURL, Valid: a.Product.ImageURL != ""}
		pPrice = sql.NullFloat64{Float64: a.Product.Price, Valid: true}
		pFetched = sql.NullTime{Time: a.Product.FetchedAt, Valid: true}
	}

	result, err := d.db.ExecContext(ctx, query,
		a.ID, a.ShopDomain, a.ShopifyProductID, a.Title, a.Description,
		a.StartingBid, a.BuyNowPrice, a.Status, a.StartTime, a.EndTime,
		pTitle, pImage, pPrice, pFetched)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errs.ErrNotFound
	}

	return nil
}

// DeleteAuction hard-deletes an auction, guarded against recorded bids so
// the no-delete-once-bid invariant holds even under races.
func (d *DB) DeleteAuction(ctx context.Context, shopDomain string, id uuid.UUID) error {
	query := `
		DELETE FROM auctions
		WHERE id = $1 AND shop_domain = $2
		  AND NOT EXISTS (SELECT 1 FROM bids WHERE auction_id = $1)
	`

	result, err := d.db.ExecContext(ctx, query, id, shopDomain)
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := d.GetAuction(ctx, shopDomain, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: auction has bids", errs.ErrInvalidState)
	}

	return nil
}

// CountRunningAuctions counts auctions that are still scheduled or live,
// for plan-limit enforcement.
func (d *DB) CountRunningAuctions(ctx context.Context, shopDomain string, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM auctions
		WHERE shop_domain = $1
		  AND status NOT IN ('closed', 'ended')
		  AND end_time > $2
	`

	var count int
	if err := d.db.QueryRowContext(ctx, query, shopDomain, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count auctions: %w", err)
	}

	return count, nil
}

// AcceptBid applies a bid as one transaction: a conditional update that
// only matches while the bid still beats the stored current bid and the
// auction is still open, plus the history insert. The condition makes the
// check-then-act atomic; when two bids race, the loser matches zero rows
// and accepted comes back false.
func (d *DB) AcceptBid(ctx context.Context, acc BidAcceptance) (*models.Auction, bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		UPDATE auctions
		SET current_bid = $3,
		    highest_bidder = $4,
		    status = CASE WHEN $5 THEN 'ended' ELSE status END,
		    end_time = CASE WHEN $5 THEN $6::timestamptz ELSE end_time END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND shop_domain = $2
		  AND status <> 'closed'
		  AND start_time <= $6 AND end_time > $6
		  AND ((current_bid > 0 AND $3 >= current_bid + 1)
		       OR (current_bid = 0 AND $3 >= starting_bid))
		RETURNING %s`, auctionColumns)

	a, err := scanAuction(tx.QueryRowContext(ctx, query,
		acc.AuctionID, acc.ShopDomain, acc.Amount, acc.Bidder, acc.EndsAuction, acc.Now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to apply bid: %w", err)
	}

	insert := `
		INSERT INTO bids (id, auction_id, bidder, amount, placed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, insert,
		uuid.New(), acc.AuctionID, acc.Bidder, acc.Amount, acc.Now); err != nil {
		return nil, false, fmt.Errorf("failed to insert bid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit bid: %w", err)
	}

	a.BidCount++
	return a, true, nil
}

// RelistAuction resets bid state and applies the new window, guarded
// against recorded bids. Returns false when the auction was not eligible.
func (d *DB) RelistAuction(ctx context.Context, a *models.Auction) (bool, error) {
	query := `
		UPDATE auctions
		SET current_bid = 0,
		    highest_bidder = '',
		    status = $3,
		    start_time = $4,
		    end_time = $5,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND shop_domain = $2
		  AND NOT EXISTS (SELECT 1 FROM bids WHERE auction_id = $1)
	`

	result, err := d.db.ExecContext(ctx, query,
		a.ID, a.ShopDomain, a.Status, a.StartTime, a.EndTime)
	if err != nil {
		return false, fmt.Errorf("failed to relist auction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*models.Auction, error) {
	var a models.Auction
	var pTitle, pImage sql.NullString
	var pPrice sql.NullFloat64
	var pFetched sql.NullTime

	err := row.Scan(
		&a.ID, &a.ShopDomain, &a.ShopifyProductID, &a.Title, &a.Description,
		&a.StartingBid, &a.CurrentBid, &a.BuyNowPrice, &a.HighestBidder, &a.Status,
		&a.StartTime, &a.EndTime, &pTitle, &pImage, &pPrice,
		&pFetched, &a.CreatedAt, &a.UpdatedAt, &a.BidCount)
	if err != nil {
		return nil, err
	}

	if pTitle.Valid {
		a.Product = &models.ProductSnapshot{
			Title:     pTitle.String,
			ImageURL:  pImage.String,
			Price:     pPrice.Float64,
			FetchedAt: pFetched.Time,
		}
	}

	return &a, nil
}
