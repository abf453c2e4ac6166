// Package service implements the auction lifecycle: creation, partial
// update, deletion, bidding, buy-now, relisting and product snapshot
// refresh, with plan gating and event publication.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidlyapplaunch/bidly-sub001/internal/errs"
	"github.com/bidlyapplaunch/bidly-sub001/internal/lifecycle"
	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
	"github.com/bidlyapplaunch/bidly-sub001/internal/shopify"
	"github.com/bidlyapplaunch/bidly-sub001/internal/storage"
)

// AuctionRepository is the persistence surface the service needs.
type AuctionRepository interface {
	CreateAuction(ctx context.Context, a *models.Auction) error
	GetAuction(ctx context.Context, shopDomain string, id uuid.UUID) (*models.Auction, error)
	ListAuctions(ctx context.Context, shopDomain string, f models.AuctionFilter) ([]models.Auction, error)
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	UpdateAuction(ctx context.Context, a *models.Auction) error
	DeleteAuction(ctx context.Context, shopDomain string, id uuid.UUID) error
	CountRunningAuctions(ctx context.Context, shopDomain string, now time.Time) (int, error)
	AcceptBid(ctx context.Context, acc storage.BidAcceptance) (*models.Auction, bool, error)
	RelistAuction(ctx context.Context, a *models.Auction) (bool, error)
}

// StoreRepository resolves and maintains tenant records.
type StoreRepository interface {
	UpsertStore(ctx context.Context, s *models.Store) error
	GetStore(ctx context.Context, shopDomain string) (*models.Store, error)
	TouchStore(ctx context.Context, shopDomain string) error
}

// BidCache is the Redis-backed current-bid cache. It serves the cheap
// read path; PostgreSQL remains the arbiter of bid acceptance. Entries
// are keyed by shop domain and auction id, so a hit never leaks across
// tenants.
type BidCache interface {
	GetCurrentBid(ctx context.Context, shopDomain, auctionID string) (float64, bool, error)
	RaiseCurrentBid(ctx context.Context, shopDomain, auctionID string, amount float64) error
	ResetCurrentBid(ctx context.Context, shopDomain, auctionID string, amount float64) error
	RemoveCurrentBid(ctx context.Context, shopDomain, auctionID string) error
}

// EventPublisher fans accepted state changes out to the real-time and
// archival transports.
type EventPublisher interface {
	PublishRealtime(ctx context.Context, event *models.AuctionEvent) error
	PublishArchive(ctx context.Context, event *models.AuctionEvent) error
}

// Service is the auction application core.
type Service struct {
	repo      AuctionRepository
	stores    StoreRepository
	cache     BidCache
	publisher EventPublisher
	products  shopify.ProductFetcher
	log       *zap.Logger

	now func() time.Time
}

// NewService constructs the auction service.
func NewService(repo AuctionRepository, stores StoreRepository, cache BidCache,
	publisher EventPublisher, products shopify.ProductFetcher, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		stores:    stores,
		cache:     cache,
		publisher: publisher,
		products:  products,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and inserts a new auction, enforcing the store's plan
// limits. The product snapshot fetch is best effort: a catalog failure is
// logged and the auction is created without product data.
func (s *Service) Create(ctx context.Context, tenant *models.Store, req *models.CreateAuctionRequest) (*models.Auction, error) {
	if req.ShopifyProductID == "" {
		return nil, fmt.Errorf("%w: shopify_product_id is required", errs.ErrValidation)
	}
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", errs.ErrValidation)
	}
	if req.StartingBid <= 0 {
		return nil, fmt.Errorf("%w: starting_bid must be positive", errs.ErrValidation)
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", errs.ErrValidation)
	}

	limits := models.LimitsFor(tenant.Plan)
	if req.BuyNowPrice > 0 {
		if !limits.BuyNow {
			return nil, fmt.Errorf("%w: plan %s does not include buy-now", errs.ErrPlanLimit, tenant.Plan)
		}
		if req.BuyNowPrice <= req.StartingBid {
			return nil, fmt.Errorf("%w: buy_now_price must exceed starting_bid", errs.ErrValidation)
		}
	}

	now := s.now()
	if limits.MaxActiveAuctions > 0 {
		count, err := s.repo.CountRunningAuctions(ctx, tenant.ShopDomain, now)
		if err != nil {
			return nil, err
		}
		if count >= limits.MaxActiveAuctions {
			return nil, fmt.Errorf("%w: plan %s allows %d running auctions",
				errs.ErrPlanLimit, tenant.Plan, limits.MaxActiveAuctions)
		}
	}

	a := &models.Auction{
		ID:               uuid.New(),
		ShopDomain:       tenant.ShopDomain,
		ShopifyProductID: req.ShopifyProductID,
		Title:            req.Title,
		Description:      req.Description,
		StartingBid:      req.StartingBid,
		BuyNowPrice:      req.BuyNowPrice,
		Status:           lifecycle.EffectiveStatus(models.StatusPending, req.StartTime, req.EndTime, now),
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	snapshot, err := s.products.GetProduct(ctx, tenant.ShopDomain, tenant.AccessToken, req.ShopifyProductID)
	if err != nil {
		s.log.Warn("product snapshot fetch failed, creating auction without product data",
			zap.String("shop", tenant.ShopDomain),
			zap.String("product_id", req.ShopifyProductID),
			zap.Error(err))
	} else {
		a.Product = snapshot
	}

	if err := s.repo.CreateAuction(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

// List returns the store's auctions with their effective status.
func (s *Service) List(ctx context.Context, tenant *models.Store, f models.AuctionFilter) ([]models.Auction, error) {
	auctions, err := s.repo.ListAuctions(ctx, tenant.ShopDomain, f)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range auctions {
		auctions[i].Status = lifecycle.Resolve(&auctions[i], now)
	}

	return auctions, nil
}

// Get returns one auction with bid history and effective status.
func (s *Service) Get(ctx context.Context, tenant *models.Store, id uuid.UUID) (*models.Auction, error) {
	a, err := s.repo.GetAuction(ctx, tenant.ShopDomain, id)
	if err != nil {
		return nil, err
	}

	bids, err := s.repo.ListBids(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Bids = bids
	a.Status = lifecycle.Resolve(a, s.now())

	return a, nil
}

// Update applies a partial update. Once a bid exists, the product
// reference, starting bid and time window are frozen.
func (s *Service) Update(ctx context.Context, tenant *models.Store, id uuid.UUID, req *models.UpdateAuctionRequest) (*models.Auction, error) {
	a, err := s.repo.GetAuction(ctx, tenant.ShopDomain, id)
	if err != nil {
		return nil, err
	}

	if a.HasBids() {
		if field := frozenFieldChange(a, req); field != "" {
			return nil, fmt.Errorf("%w: cannot change %s after bidding has started", errs.ErrValidation, field)
		}
	}

	if req.ShopifyProductID != nil {
		a.ShopifyProductID = *req.ShopifyProductID
	}
	if req.Title != nil {
		a.Title = *req.Title
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.StartingBid != nil {
		if *req.StartingBid <= 0 {
			return nil, fmt.Errorf("%w: starting_bid must be positive", errs.ErrValidation)
		}
		a.StartingBid = *req.StartingBid
	}
	if req.BuyNowPrice != nil {
		if *req.BuyNowPrice > 0 && !models.LimitsFor(tenant.Plan).BuyNow {
			return nil, fmt.Errorf("%w: plan %s does not include buy-now", errs.ErrPlanLimit, tenant.Plan)
		}
		a.BuyNowPrice = *req.BuyNowPrice
	}
	if req.StartTime != nil {
		a.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		a.EndTime = *req.EndTime
	}
	if req.Status != nil {
		switch *req.Status {
		case models.StatusPending, models.StatusActive, models.StatusEnded, models.StatusClosed:
			a.Status = *req.Status
		default:
			return nil, fmt.Errorf("%w: unknown status %q", errs.ErrValidation, *req.Status)
		}
	}

	if !a.EndTime.After(a.StartTime) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", errs.ErrValidation)
	}

	if err := s.repo.UpdateAuction(ctx, a); err != nil {
		return nil, err
	}

	a.Status = lifecycle.Resolve(a, s.now())
	return a, nil
}

// Delete hard-deletes a bid-free auction and drops its cache entry.
func (s *Service) Delete(ctx context.Context, tenant *models.Store, id uuid.UUID) error {
	a, err := s.repo.GetAuction(ctx, tenant.ShopDomain, id)
	if err != nil {
		return err
	}
	if a.HasBids() {
		return fmt.Errorf("%w: auction has bids and cannot be deleted", errs.ErrInvalidState)
	}

	if err := s.repo.DeleteAuction(ctx, tenant.ShopDomain, id); err != nil {
		return err
	}

	if err := s.cache.RemoveCurrentBid(ctx, tenant.ShopDomain, id.String()); err != nil {
		s.log.Warn("failed to remove cached bid", zap.String("auction_id", id.String()), zap.Error(err))
	}

	return nil
}

// PlaceBid validates and applies a regular bid. A bid that meets or
// exceeds a configured buy-now price ends the auction immediately.
func (s *Service) PlaceBid(ctx context.Context, tenant *models.Store, id uuid.UUID, req *models.BidRequest) (*models.Auction, error) {
	return s.placeBid(ctx, tenant, id, req.Bidder, req.Amount, false)
}

// BuyNow is a bid at exactly the buy-now price.
func (s *Service) BuyNow(ctx context.Context, tenant *models.Store, id uuid.UUID, req *models.BuyNowRequest) (*models.Auction, error) {
	if !models.LimitsFor(tenant.Plan).BuyNow {
		return nil, fmt.Errorf("%w: plan %s does not include buy-now", errs.ErrPlanLimit, tenant.Plan)
	}

	a, err := s.repo.GetAuction(ctx, tenant.ShopDomain, id)
	if err != nil {
		return nil, err
	}
	if !a.HasBuyNow() {
		return nil, fmt.Errorf("%w: auction has no buy-now price", errs.ErrInvalidState)
	}

	return s.placeBid(ctx, tenant, id, req.Bidder, a.BuyNowPrice, true)
}

func (s *Service) placeBid(ctx context.Context, tenant *models.Store, id uuid.UUID, bidder string, amount float64, viaBuyNow bool) (*models.Auction, error) {
	if bidder == "" {
		return nil, fmt.Errorf("%w: bidder is required", errs.ErrValidation)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: bid amount must be positive", errs.ErrValidation)
	}

	now := s.now()

	a, err := s.repo.GetAuction(ctx, tenant.ShopDomain, id)
	if err != nil {
		return nil, err
	}

	if status := lifecycle.Resolve(a, now); status != models.StatusActive {
		return nil, fmt.Errorf("%w: auction is %s", errs.ErrInvalidState, status)
	}
	// Guarded again even though Resolve already looked at the window, so a
	// clock moving past end_time between the two reads cannot slip through.
	if !lifecycle.InWindow(a.StartTime, a.EndTime, now) {
		return nil, fmt.Errorf("%w: outside bidding window", errs.ErrInvalidState)
	}
	if min := lifecycle.MinimumBid(a.CurrentBid, a.StartingBid); amount < min {
		return nil, fmt.Errorf("%w: minimum bid is %.2f", errs.ErrInvalidBid, min)
	}

	previousBid := a.CurrentBid
	endsAuction := viaBuyNow || lifecycle.MeetsBuyNow(amount, a.BuyNowPrice)

	updated, accepted, err := s.repo.AcceptBid(ctx, storage.BidAcceptance{
		AuctionID:   id,
		ShopDomain:  tenant.ShopDomain,
		Bidder:      bidder,
		Amount:      amount,
		Now:         now,
		EndsAuction: endsAuction,
	})
	if err != nil {
		return nil, err
	}
	if !accepted {
		// The conditional update matched nothing: a concurrent bid won, or
		// the auction closed between the read and the write. Re-read for
		// the accurate rejection.
		fresh, err := s.repo.GetAuction(ctx, tenant.ShopDomain, id)
		if err != nil {
			return nil, err
		}
		if status := lifecycle.Resolve(fresh, now); status != models.StatusActive {
			return nil, fmt.Errorf("%w: auction is %s", errs.ErrInvalidState, status)
		}
		return nil, fmt.Errorf("%w: minimum bid is %.2f",
			errs.ErrInvalidBid, lifecycle.MinimumBid(fresh.CurrentBid, fresh.StartingBid))
	}

	if err := s.cache.RaiseCurrentBid(ctx, tenant.ShopDomain, id.String(), amount); err != nil {
		s.log.Warn("failed to raise cached bid", zap.String("auction_id", id.String()), zap.Error(err))
	}

	bids, err := s.repo.ListBids(ctx, id)
	if err != nil {
		s.log.Warn("failed to load bid history", zap.String("auction_id", id.String()), zap.Error(err))
	} else {
		updated.Bids = bids
	}

	event := &models.AuctionEvent{
		EventID:      uuid.New(),
		AuctionID:    id,
		ShopDomain:   tenant.ShopDomain,
		Bidder:       bidder,
		Amount:       amount,
		PreviousBid:  previousBid,
		CurrentBid:   updated.CurrentBid,
		BidHistory:   updated.Bids,
		Timestamp:    now,
		AuctionEnded: endsAuction,
		BuyNow:       viaBuyNow,
	}
	if endsAuction {
		event.Winner = bidder
	}
	s.publish(event)

	updated.Status = lifecycle.Resolve(updated, now)
	return updated, nil
}

// Relist reopens a finished, bid-free auction under a new time window.
func (s *Service) Relist(ctx context.Context, tenant *models.Store, id uuid.UUID, req *models.RelistAuctionRequest) (*models.Auction, error) {
	if !models.LimitsFor(tenant.Plan).Relist {
		return nil, fmt.Errorf("%w: plan %s does not include relisting", errs.ErrPlanLimit, tenant.Plan)
	}

	a, err := s.repo.GetAuction(ctx, tenant.ShopDomain, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if status := lifecycle.Resolve(a, now); status != models.StatusEnded && status != models.StatusClosed {
		return nil, fmt.Errorf("%w: only ended or closed auctions can be relisted, auction is %s",
			errs.ErrInvalidState, status)
	}
	if a.HasBids() {
		return nil, fmt.Errorf("%w: auction has bids and cannot be relisted", errs.ErrInvalidState)
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", errs.ErrValidation)
	}
	if !req.EndTime.After(now) {
		return nil, fmt.Errorf("%w: end_time must be in the future", errs.ErrValidation)
	}

	a.StartTime = req.StartTime
	a.EndTime = req.EndTime
	a.Status = lifecycle.EffectiveStatus(models.StatusPending, req.StartTime, req.EndTime, now)

	ok, err := s.repo.RelistAuction(ctx, a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: auction has bids and cannot be relisted", errs.ErrInvalidState)
	}

	if err := s.cache.ResetCurrentBid(ctx, tenant.ShopDomain, id.String(), 0); err != nil {
		s.log.Warn("failed to reset cached bid", zap.String("auction_id", id.String()), zap.Error(err))
	}

	a.CurrentBid = 0
	a.HighestBidder = ""
	a.Bids = nil
	return a, nil
}

// RefreshProduct re-fetches the product snapshot. Unlike at creation,
// the fetch error is surfaced here: refreshing is the caller's whole
// intent.
func (s *Service) RefreshProduct(ctx context.Context, tenant *models.Store, id uuid.UUID) (*models.Auction, error) {
	a, err := s.repo.GetAuction(ctx, tenant.ShopDomain, id)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.products.GetProduct(ctx, tenant.ShopDomain, tenant.AccessToken, a.ShopifyProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh product data: %w", err)
	}

	a.Product = snapshot
	if err := s.repo.UpdateAuction(ctx, a); err != nil {
		return nil, err
	}

	a.Status = lifecycle.Resolve(a, s.now())
	return a, nil
}

// CurrentBid serves the storefront polling path from the cache, falling
// back to the database and backfilling the cache on a miss.
func (s *Service) CurrentBid(ctx context.Context, tenant *models.Store, id uuid.UUID) (float64, error) {
	cached, ok, err := s.cache.GetCurrentBid(ctx, tenant.ShopDomain, id.String())
	if err != nil {
		s.log.Warn("bid cache read failed", zap.String("auction_id", id.String()), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	a, err := s.repo.GetAuction(ctx, tenant.ShopDomain, id)
	if err != nil {
		return 0, err
	}

	if err := s.cache.RaiseCurrentBid(ctx, tenant.ShopDomain, id.String(), a.CurrentBid); err != nil {
		s.log.Warn("failed to backfill bid cache", zap.String("auction_id", id.String()), zap.Error(err))
	}

	return a.CurrentBid, nil
}

// InstallStore records a completed installation: the shop domain and the
// Admin API token issued for it.
func (s *Service) InstallStore(ctx context.Context, req *models.InstallStoreRequest) (*models.Store, error) {
	if req.ShopDomain == "" {
		return nil, fmt.Errorf("%w: shop_domain is required", errs.ErrValidation)
	}
	if req.AccessToken == "" {
		return nil, fmt.Errorf("%w: access_token is required", errs.ErrValidation)
	}

	plan := req.Plan
	if plan == "" {
		plan = models.PlanTrial
	}

	store := &models.Store{
		ShopDomain:  req.ShopDomain,
		AccessToken: req.AccessToken,
		Plan:        plan,
		Installed:   true,
	}
	if err := s.stores.UpsertStore(ctx, store); err != nil {
		return nil, err
	}

	return s.stores.GetStore(ctx, req.ShopDomain)
}

// publish fans the event out to both transports, fire and forget. A
// failed publish is logged and never fails the bid that caused it.
func (s *Service) publish(event *models.AuctionEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishRealtime(ctx, event); err != nil {
			s.log.Warn("failed to publish realtime event",
				zap.String("event_id", event.EventID.String()), zap.Error(err))
		}
	}()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishArchive(ctx, event); err != nil {
			s.log.Warn("failed to publish archival event",
				zap.String("event_id", event.EventID.String()), zap.Error(err))
		}
	}()
}

// frozenFieldChange names the first immutable field a partial update
// tries to change, or "" when none.
func frozenFieldChange(a *models.Auction, req *models.UpdateAuctionRequest) string {
	if req.ShopifyProductID != nil && *req.ShopifyProductID != a.ShopifyProductID {
		return "shopify_product_id"
	}
	if req.StartingBid != nil && *req.StartingBid != a.StartingBid {
		return "starting_bid"
	}
	if req.StartTime != nil && !req.StartTime.Equal(a.StartTime) {
		return "start_time"
	}
	if req.EndTime != nil && !req.EndTime.Equal(a.EndTime) {
		return "end_time"
	}
	return ""
}
