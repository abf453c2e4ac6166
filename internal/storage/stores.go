package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bidlyapplaunch/bidly-sub001/internal/errs"
	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
)

// UpsertStore inserts or refreshes a store record. Reinstalls overwrite
// the access token and re-mark the store installed.
func (d *DB) UpsertStore(ctx context.Context, s *models.Store) error {
	query := `
		INSERT INTO stores (shop_domain, access_token, plan, installed, installed_at, last_access_at)
		VALUES ($1, $2, $3, TRUE, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (shop_domain) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    plan = EXCLUDED.plan,
		    installed = TRUE,
		    last_access_at = CURRENT_TIMESTAMP
	`

	if _, err := d.db.ExecContext(ctx, query, s.ShopDomain, s.AccessToken, s.Plan); err != nil {
		return fmt.Errorf("failed to upsert store: %w", err)
	}

	return nil
}

// GetStore resolves a shop domain to its store record.
func (d *DB) GetStore(ctx context.Context, shopDomain string) (*models.Store, error) {
	query := `
		SELECT shop_domain, access_token, plan, installed, installed_at, last_access_at
		FROM stores
		WHERE shop_domain = $1
	`

	var s models.Store
	err := d.db.QueryRowContext(ctx, query, shopDomain).Scan(
		&s.ShopDomain, &s.AccessToken, &s.Plan, &s.Installed, &s.InstalledAt, &s.LastAccessAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query store: %w", err)
	}

	return &s, nil
}

// TouchStore bumps last_access_at. Callers treat this as best effort;
// lost updates are acceptable.
func (d *DB) TouchStore(ctx context.Context, shopDomain string) error {
	query := `UPDATE stores SET last_access_at = CURRENT_TIMESTAMP WHERE shop_domain = $1`

	if _, err := d.db.ExecContext(ctx, query, shopDomain); err != nil {
		return fmt.Errorf("failed to touch store: %w", err)
	}

	return nil
}
