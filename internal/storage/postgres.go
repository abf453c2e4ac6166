// Package storage persists auctions, bid history, store records and the
// bid-event audit log in PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/bidlyapplaunch/bidly-sub001/internal/config"
)

// DB wraps the PostgreSQL connection.
type DB struct {
	db *sql.DB
}

// Open connects to PostgreSQL and configures the pool.
func Open(ctx context.Context, cfg config.PostgresConfig) (*DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &DB{db: db}, nil
}

// InitSchema creates the tables if they do not exist.
func (d *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stores (
		shop_domain VARCHAR(255) PRIMARY KEY,
		access_token TEXT NOT NULL,
		plan VARCHAR(50) NOT NULL DEFAULT 'trial',
		installed BOOLEAN NOT NULL DEFAULT TRUE,
		installed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_access_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS auctions (
		id UUID PRIMARY KEY,
		shop_domain VARCHAR(255) NOT NULL REFERENCES stores (shop_domain),
		shopify_product_id VARCHAR(255) NOT NULL,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		starting_bid DECIMAL(12, 2) NOT NULL,
		current_bid DECIMAL(12, 2) NOT NULL DEFAULT 0,
		buy_now_price DECIMAL(12, 2) NOT NULL DEFAULT 0,
		highest_bidder VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		product_title VARCHAR(255),
		product_image TEXT,
		product_price DECIMAL(12, 2),
		product_fetched_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_auctions_shop ON auctions (shop_domain, status);

	CREATE TABLE IF NOT EXISTS bids (
		id UUID PRIMARY KEY,
		auction_id UUID NOT NULL REFERENCES auctions (id) ON DELETE CASCADE,
		bidder VARCHAR(255) NOT NULL,
		amount DECIMAL(12, 2) NOT NULL,
		placed_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids (auction_id, placed_at);

	CREATE TABLE IF NOT EXISTS auction_events (
		event_id UUID PRIMARY KEY,
		auction_id UUID NOT NULL,
		shop_domain VARCHAR(255) NOT NULL,
		bidder VARCHAR(255) NOT NULL,
		amount DECIMAL(12, 2) NOT NULL,
		previous_bid DECIMAL(12, 2) NOT NULL,
		auction_ended BOOLEAN NOT NULL,
		buy_now BOOLEAN NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
