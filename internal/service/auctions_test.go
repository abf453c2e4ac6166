package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bidlyapplaunch/bidly-sub001/internal/errs"
	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
	"github.com/bidlyapplaunch/bidly-sub001/internal/storage"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

// fakeRepo is an in-memory AuctionRepository that mirrors the SQL
// conditional-update semantics, including the bid acceptance condition.
type fakeRepo struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]*models.Auction
	bids     map[uuid.UUID][]models.Bid

	forceRejectBid bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		auctions: make(map[uuid.UUID]*models.Auction),
		bids:     make(map[uuid.UUID][]models.Bid),
	}
}

func (r *fakeRepo) copyOf(a *models.Auction) *models.Auction {
	cp := *a
	cp.Bids = nil
	cp.BidCount = len(r.bids[a.ID])
	return &cp
}

func (r *fakeRepo) CreateAuction(_ context.Context, a *models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.auctions[a.ID] = &cp
	return nil
}

func (r *fakeRepo) GetAuction(_ context.Context, shopDomain string, id uuid.UUID) (*models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok || a.ShopDomain != shopDomain {
		return nil, errs.ErrNotFound
	}
	return r.copyOf(a), nil
}

func (r *fakeRepo) ListAuctions(_ context.Context, shopDomain string, f models.AuctionFilter) ([]models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Auction
	for _, a := range r.auctions {
		if a.ShopDomain != shopDomain {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, *r.copyOf(a))
	}
	return out, nil
}

func (r *fakeRepo) ListBids(_ context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Bid(nil), r.bids[auctionID]...), nil
}

func (r *fakeRepo) UpdateAuction(_ context.Context, a *models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.auctions[a.ID]
	if !ok || existing.ShopDomain != a.ShopDomain {
		return errs.ErrNotFound
	}
	cp := *a
	cp.CurrentBid = existing.CurrentBid
	cp.HighestBidder = existing.HighestBidder
	cp.CreatedAt = existing.CreatedAt
	r.auctions[a.ID] = &cp
	return nil
}

func (r *fakeRepo) DeleteAuction(_ context.Context, shopDomain string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok || a.ShopDomain != shopDomain {
		return errs.ErrNotFound
	}
	if len(r.bids[id]) > 0 {
		return fmt.Errorf("%w: auction has bids", errs.ErrInvalidState)
	}
	delete(r.auctions, id)
	return nil
}

func (r *fakeRepo) CountRunningAuctions(_ context.Context, shopDomain string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.auctions {
		if a.ShopDomain != shopDomain {
			continue
		}
		if a.Status == models.StatusClosed || a.Status == models.StatusEnded {
			continue
		}
		if a.EndTime.After(now) {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) AcceptBid(_ context.Context, acc storage.BidAcceptance) (*models.Auction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceRejectBid {
		return nil, false, nil
	}
	a, ok := r.auctions[acc.AuctionID]
	if !ok || a.ShopDomain != acc.ShopDomain {
		return nil, false, nil
	}
	if a.Status == models.StatusClosed {
		return nil, false, nil
	}
	if acc.Now.Before(a.StartTime) || !a.EndTime.After(acc.Now) {
		return nil, false, nil
	}
	if !((a.CurrentBid > 0 && acc.Amount >= a.CurrentBid+1) || (a.CurrentBid == 0 && acc.Amount >= a.StartingBid)) {
		return nil, false, nil
	}

	a.CurrentBid = acc.Amount
	a.HighestBidder = acc.Bidder
	if acc.EndsAuction {
		a.Status = models.StatusEnded
		a.EndTime = acc.Now
	}
	a.UpdatedAt = acc.Now
	r.bids[acc.AuctionID] = append(r.bids[acc.AuctionID], models.Bid{
		ID:        uuid.New(),
		AuctionID: acc.AuctionID,
		Bidder:    acc.Bidder,
		Amount:    acc.Amount,
		PlacedAt:  acc.Now,
	})
	return r.copyOf(a), true, nil
}

func (r *fakeRepo) RelistAuction(_ context.Context, a *models.Auction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.auctions[a.ID]
	if !ok || existing.ShopDomain != a.ShopDomain {
		return false, nil
	}
	if len(r.bids[a.ID]) > 0 {
		return false, nil
	}
	existing.CurrentBid = 0
	existing.HighestBidder = ""
	existing.Status = a.Status
	existing.StartTime = a.StartTime
	existing.EndTime = a.EndTime
	return true, nil
}

type fakeStores struct {
	mu     sync.Mutex
	stores map[string]*models.Store
}

func newFakeStores() *fakeStores {
	return &fakeStores{stores: make(map[string]*models.Store)}
}

func (s *fakeStores) UpsertStore(_ context.Context, store *models.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *store
	cp.InstalledAt = testNow
	cp.LastAccessAt = testNow
	s.stores[store.ShopDomain] = &cp
	return nil
}

func (s *fakeStores) GetStore(_ context.Context, shopDomain string) (*models.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.stores[shopDomain]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *store
	return &cp, nil
}

func (s *fakeStores) TouchStore(_ context.Context, shopDomain string) error {
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string]float64
	resets int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]float64)}
}

func cacheKey(shopDomain, auctionID string) string {
	return shopDomain + "/" + auctionID
}

func (c *fakeCache) GetCurrentBid(_ context.Context, shopDomain, auctionID string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[cacheKey(shopDomain, auctionID)]
	return v, ok, nil
}

func (c *fakeCache) RaiseCurrentBid(_ context.Context, shopDomain, auctionID string, amount float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(shopDomain, auctionID)
	if amount > c.values[key] {
		c.values[key] = amount
	}
	return nil
}

func (c *fakeCache) ResetCurrentBid(_ context.Context, shopDomain, auctionID string, amount float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[cacheKey(shopDomain, auctionID)] = amount
	c.resets++
	return nil
}

func (c *fakeCache) RemoveCurrentBid(_ context.Context, shopDomain, auctionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, cacheKey(shopDomain, auctionID))
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	realtime []*models.AuctionEvent
	archive  []*models.AuctionEvent
}

func (p *fakePublisher) PublishRealtime(_ context.Context, event *models.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.realtime = append(p.realtime, event)
	return nil
}

func (p *fakePublisher) PublishArchive(_ context.Context, event *models.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.archive = append(p.archive, event)
	return nil
}

func (p *fakePublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.realtime), len(p.archive)
}

func (p *fakePublisher) lastRealtime() *models.AuctionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.realtime) == 0 {
		return nil
	}
	return p.realtime[len(p.realtime)-1]
}

func (p *fakePublisher) findRealtime(match func(*models.AuctionEvent) bool) *models.AuctionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.realtime {
		if match(e) {
			return e
		}
	}
	return nil
}

type fakeFetcher struct {
	snapshot *models.ProductSnapshot
	err      error
	calls    int
}

func (f *fakeFetcher) GetProduct(_ context.Context, _, _, _ string) (*models.ProductSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

type testEnv struct {
	svc     *Service
	repo    *fakeRepo
	stores  *fakeStores
	cache   *fakeCache
	pub     *fakePublisher
	fetcher *fakeFetcher
	tenant  *models.Store
}

func newTestEnv(t *testing.T, plan models.PlanTier) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:   newFakeRepo(),
		stores: newFakeStores(),
		cache:  newFakeCache(),
		pub:    &fakePublisher{},
		fetcher: &fakeFetcher{snapshot: &models.ProductSnapshot{
			Title: "Vintage Lamp", ImageURL: "https://cdn.example/lamp.png", Price: 120, FetchedAt: testNow,
		}},
		tenant: &models.Store{
			ShopDomain:  "demo.myshopify.com",
			AccessToken: "shpat_test",
			Plan:        plan,
			Installed:   true,
		},
	}
	env.svc = NewService(env.repo, env.stores, env.cache, env.pub, env.fetcher, zap.NewNop())
	env.svc.now = func() time.Time { return testNow }
	return env
}

func (e *testEnv) createAuction(t *testing.T, mutate func(*models.CreateAuctionRequest)) *models.Auction {
	t.Helper()
	req := &models.CreateAuctionRequest{
		ShopifyProductID: "prod-1",
		Title:            "Vintage Lamp",
		StartingBid:      100,
		StartTime:        testNow.Add(-time.Hour),
		EndTime:          testNow.Add(time.Hour),
	}
	if mutate != nil {
		mutate(req)
	}
	a, err := e.svc.Create(context.Background(), e.tenant, req)
	require.NoError(t, err)
	return a
}

func (e *testEnv) waitForEvents(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		rt, ar := e.pub.counts()
		return rt >= n && ar >= n
	}, time.Second, 5*time.Millisecond, "expected %d published events", n)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.CreateAuctionRequest)
	}{
		{"missing product", func(r *models.CreateAuctionRequest) { r.ShopifyProductID = "" }},
		{"missing title", func(r *models.CreateAuctionRequest) { r.Title = "" }},
		{"zero starting bid", func(r *models.CreateAuctionRequest) { r.StartingBid = 0 }},
		{"window inverted", func(r *models.CreateAuctionRequest) { r.EndTime = r.StartTime.Add(-time.Minute) }},
		{"buy-now below starting bid", func(r *models.CreateAuctionRequest) { r.BuyNowPrice = 50 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &models.CreateAuctionRequest{
				ShopifyProductID: "prod-1",
				Title:            "Vintage Lamp",
				StartingBid:      100,
				StartTime:        testNow.Add(-time.Hour),
				EndTime:          testNow.Add(time.Hour),
			}
			tt.mutate(req)
			_, err := env.svc.Create(ctx, env.tenant, req)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestCreateSetsStatusFromWindow(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)

	future := env.createAuction(t, func(r *models.CreateAuctionRequest) {
		r.StartTime = testNow.Add(time.Hour)
		r.EndTime = testNow.Add(2 * time.Hour)
	})
	assert.Equal(t, models.StatusPending, future.Status)

	live := env.createAuction(t, nil)
	assert.Equal(t, models.StatusActive, live.Status)
	assert.Equal(t, 0.0, live.CurrentBid)
}

func TestCreateAttachesSnapshotBestEffort(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)

	a := env.createAuction(t, nil)
	require.NotNil(t, a.Product)
	assert.Equal(t, "Vintage Lamp", a.Product.Title)

	// A catalog failure must not fail creation.
	env.fetcher.err = errors.New("catalog unavailable")
	b := env.createAuction(t, nil)
	assert.Nil(t, b.Product)
}

func TestCreatePlanGating(t *testing.T) {
	env := newTestEnv(t, models.PlanTrial)
	ctx := context.Background()

	// Trial has no buy-now.
	_, err := env.svc.Create(ctx, env.tenant, &models.CreateAuctionRequest{
		ShopifyProductID: "prod-1",
		Title:            "Vintage Lamp",
		StartingBid:      100,
		BuyNowPrice:      500,
		StartTime:        testNow.Add(-time.Hour),
		EndTime:          testNow.Add(time.Hour),
	})
	assert.ErrorIs(t, err, errs.ErrPlanLimit)

	// Trial caps running auctions at 3.
	for i := 0; i < 3; i++ {
		env.createAuction(t, nil)
	}
	_, err = env.svc.Create(ctx, env.tenant, &models.CreateAuctionRequest{
		ShopifyProductID: "prod-1",
		Title:            "Vintage Lamp",
		StartingBid:      100,
		StartTime:        testNow.Add(-time.Hour),
		EndTime:          testNow.Add(time.Hour),
	})
	assert.ErrorIs(t, err, errs.ErrPlanLimit)
}

func TestPlaceBidLadder(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, func(r *models.CreateAuctionRequest) { r.BuyNowPrice = 500 })

	// Below starting bid.
	_, err := env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "alice", Amount: 99})
	require.ErrorIs(t, err, errs.ErrInvalidBid)
	assert.Contains(t, err.Error(), "100.00")

	// At starting bid.
	updated, err := env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "alice", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, 100.0, updated.CurrentBid)
	assert.Equal(t, "alice", updated.HighestBidder)
	assert.Equal(t, models.StatusActive, updated.Status)
	require.Len(t, updated.Bids, 1)
	assert.Equal(t, 100.0, updated.Bids[0].Amount)

	// Equal to current bid is below the minimum increment.
	_, err = env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "bob", Amount: 100})
	require.ErrorIs(t, err, errs.ErrInvalidBid)
	assert.Contains(t, err.Error(), "101.00")

	// A regular bid meeting buy-now ends the auction immediately.
	updated, err = env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "bob", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, 500.0, updated.CurrentBid)
	assert.Equal(t, models.StatusEnded, updated.Status)
	require.Len(t, updated.Bids, 2)
	assert.Equal(t, 500.0, updated.Bids[1].Amount)

	// The auction is over.
	_, err = env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "carol", Amount: 600})
	require.ErrorIs(t, err, errs.ErrInvalidState)
	assert.Contains(t, err.Error(), "ended")

	env.waitForEvents(t, 2)
	final := env.pub.findRealtime(func(e *models.AuctionEvent) bool { return e.AuctionEnded })
	require.NotNil(t, final)
	assert.Equal(t, "bob", final.Winner)
	assert.False(t, final.BuyNow)
	assert.Equal(t, 100.0, final.PreviousBid)
	assert.Equal(t, 500.0, final.CurrentBid)
}

func TestPlaceBidRejectsWrongPhase(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()

	pending := env.createAuction(t, func(r *models.CreateAuctionRequest) {
		r.StartTime = testNow.Add(time.Hour)
		r.EndTime = testNow.Add(2 * time.Hour)
	})
	_, err := env.svc.PlaceBid(ctx, env.tenant, pending.ID, &models.BidRequest{Bidder: "alice", Amount: 100})
	require.ErrorIs(t, err, errs.ErrInvalidState)
	assert.Contains(t, err.Error(), "pending")

	// Stored status lies: it says active, but the window has passed.
	stale := env.createAuction(t, nil)
	env.repo.mu.Lock()
	env.repo.auctions[stale.ID].Status = models.StatusActive
	env.repo.auctions[stale.ID].EndTime = testNow.Add(-time.Minute)
	env.repo.mu.Unlock()

	_, err = env.svc.PlaceBid(ctx, env.tenant, stale.ID, &models.BidRequest{Bidder: "alice", Amount: 100})
	require.ErrorIs(t, err, errs.ErrInvalidState)
	assert.Contains(t, err.Error(), "ended")

	// Manually closed is sticky even inside the window.
	closed := env.createAuction(t, nil)
	env.repo.mu.Lock()
	env.repo.auctions[closed.ID].Status = models.StatusClosed
	env.repo.mu.Unlock()

	_, err = env.svc.PlaceBid(ctx, env.tenant, closed.ID, &models.BidRequest{Bidder: "alice", Amount: 100})
	require.ErrorIs(t, err, errs.ErrInvalidState)
	assert.Contains(t, err.Error(), "closed")
}

func TestPlaceBidUnknownAuction(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	_, err := env.svc.PlaceBid(context.Background(), env.tenant, uuid.New(), &models.BidRequest{Bidder: "alice", Amount: 100})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPlaceBidValidation(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, nil)

	_, err := env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "", Amount: 100})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "alice", Amount: -5})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestPlaceBidLostRace(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, nil)

	// The conditional update matches nothing even though the guards
	// passed, as happens when a concurrent bid lands first.
	env.repo.forceRejectBid = true
	_, err := env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "alice", Amount: 100})
	require.ErrorIs(t, err, errs.ErrInvalidBid)
}

func TestPlaceBidUpdatesCache(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, nil)

	_, err := env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "alice", Amount: 150})
	require.NoError(t, err)

	cached, ok, err := env.cache.GetCurrentBid(ctx, env.tenant.ShopDomain, a.ID.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 150.0, cached)
}

func TestBuyNow(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, func(r *models.CreateAuctionRequest) { r.BuyNowPrice = 500 })

	updated, err := env.svc.BuyNow(ctx, env.tenant, a.ID, &models.BuyNowRequest{Bidder: "alice"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnded, updated.Status)
	assert.Equal(t, 500.0, updated.CurrentBid)
	assert.Equal(t, testNow, updated.EndTime)
	require.NotEmpty(t, updated.Bids)
	assert.Equal(t, 500.0, updated.Bids[len(updated.Bids)-1].Amount)

	env.waitForEvents(t, 1)
	event := env.pub.lastRealtime()
	assert.True(t, event.AuctionEnded)
	assert.True(t, event.BuyNow)
	assert.Equal(t, "alice", event.Winner)
}

func TestBuyNowWithoutPrice(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	a := env.createAuction(t, nil)

	_, err := env.svc.BuyNow(context.Background(), env.tenant, a.ID, &models.BuyNowRequest{Bidder: "alice"})
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestBuyNowPlanGating(t *testing.T) {
	env := newTestEnv(t, models.PlanTrial)
	a := env.createAuction(t, nil)

	_, err := env.svc.BuyNow(context.Background(), env.tenant, a.ID, &models.BuyNowRequest{Bidder: "alice"})
	assert.ErrorIs(t, err, errs.ErrPlanLimit)
}

func TestUpdateFrozenFieldsAfterBid(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, nil)

	_, err := env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "alice", Amount: 100})
	require.NoError(t, err)

	newProduct := "prod-2"
	_, err = env.svc.Update(ctx, env.tenant, a.ID, &models.UpdateAuctionRequest{ShopifyProductID: &newProduct})
	assert.ErrorIs(t, err, errs.ErrValidation)

	newStart := testNow.Add(-2 * time.Hour)
	_, err = env.svc.Update(ctx, env.tenant, a.ID, &models.UpdateAuctionRequest{StartTime: &newStart})
	assert.ErrorIs(t, err, errs.ErrValidation)

	newBid := 200.0
	_, err = env.svc.Update(ctx, env.tenant, a.ID, &models.UpdateAuctionRequest{StartingBid: &newBid})
	assert.ErrorIs(t, err, errs.ErrValidation)

	// Cosmetic fields stay editable.
	title := "Rewired Vintage Lamp"
	updated, err := env.svc.Update(ctx, env.tenant, a.ID, &models.UpdateAuctionRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, 100.0, updated.CurrentBid)
}

func TestUpdateWindowValidation(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, nil)

	// Moving end_time before the unchanged start_time is rejected.
	badEnd := a.StartTime.Add(-time.Minute)
	_, err := env.svc.Update(ctx, env.tenant, a.ID, &models.UpdateAuctionRequest{EndTime: &badEnd})
	assert.ErrorIs(t, err, errs.ErrValidation)

	goodEnd := a.StartTime.Add(3 * time.Hour)
	updated, err := env.svc.Update(ctx, env.tenant, a.ID, &models.UpdateAuctionRequest{EndTime: &goodEnd})
	require.NoError(t, err)
	assert.True(t, updated.EndTime.Equal(goodEnd))
}

func TestUpdateManualClose(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, nil)

	closed := models.StatusClosed
	updated, err := env.svc.Update(ctx, env.tenant, a.ID, &models.UpdateAuctionRequest{Status: &closed})
	require.NoError(t, err)
	// Sticky: still closed even though the window says active.
	assert.Equal(t, models.StatusClosed, updated.Status)

	_, err = env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "alice", Amount: 100})
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()

	a := env.createAuction(t, nil)
	require.NoError(t, env.svc.Delete(ctx, env.tenant, a.ID))
	_, err := env.svc.Get(ctx, env.tenant, a.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	b := env.createAuction(t, nil)
	_, err = env.svc.PlaceBid(ctx, env.tenant, b.ID, &models.BidRequest{Bidder: "alice", Amount: 100})
	require.NoError(t, err)

	err = env.svc.Delete(ctx, env.tenant, b.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestRelist(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()

	a := env.createAuction(t, func(r *models.CreateAuctionRequest) {
		r.StartTime = testNow.Add(-3 * time.Hour)
		r.EndTime = testNow.Add(-time.Hour)
	})

	relisted, err := env.svc.Relist(ctx, env.tenant, a.ID, &models.RelistAuctionRequest{
		StartTime: testNow.Add(time.Hour),
		EndTime:   testNow.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, relisted.Status)
	assert.Equal(t, 0.0, relisted.CurrentBid)
	assert.Empty(t, relisted.Bids)
	assert.Equal(t, 1, env.cache.resets)

	// A window already underway relists straight to active.
	b := env.createAuction(t, func(r *models.CreateAuctionRequest) {
		r.StartTime = testNow.Add(-3 * time.Hour)
		r.EndTime = testNow.Add(-time.Hour)
	})
	relisted, err = env.svc.Relist(ctx, env.tenant, b.ID, &models.RelistAuctionRequest{
		StartTime: testNow.Add(-time.Minute),
		EndTime:   testNow.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, relisted.Status)
}

func TestRelistRejections(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()

	// Still running.
	live := env.createAuction(t, nil)
	_, err := env.svc.Relist(ctx, env.tenant, live.ID, &models.RelistAuctionRequest{
		StartTime: testNow, EndTime: testNow.Add(time.Hour),
	})
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	// Ended but has bids.
	bidded := env.createAuction(t, nil)
	_, err = env.svc.PlaceBid(ctx, env.tenant, bidded.ID, &models.BidRequest{Bidder: "alice", Amount: 100})
	require.NoError(t, err)
	env.repo.mu.Lock()
	env.repo.auctions[bidded.ID].EndTime = testNow.Add(-time.Minute)
	env.repo.mu.Unlock()
	_, err = env.svc.Relist(ctx, env.tenant, bidded.ID, &models.RelistAuctionRequest{
		StartTime: testNow, EndTime: testNow.Add(time.Hour),
	})
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	// New window entirely in the past.
	past := env.createAuction(t, func(r *models.CreateAuctionRequest) {
		r.StartTime = testNow.Add(-3 * time.Hour)
		r.EndTime = testNow.Add(-time.Hour)
	})
	_, err = env.svc.Relist(ctx, env.tenant, past.ID, &models.RelistAuctionRequest{
		StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(-time.Minute),
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRelistPlanGating(t *testing.T) {
	env := newTestEnv(t, models.PlanBasic)
	a := env.createAuction(t, func(r *models.CreateAuctionRequest) {
		r.StartTime = testNow.Add(-3 * time.Hour)
		r.EndTime = testNow.Add(-time.Hour)
	})

	_, err := env.svc.Relist(context.Background(), env.tenant, a.ID, &models.RelistAuctionRequest{
		StartTime: testNow, EndTime: testNow.Add(time.Hour),
	})
	assert.ErrorIs(t, err, errs.ErrPlanLimit)
}

func TestRefreshProduct(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, nil)

	env.fetcher.snapshot = &models.ProductSnapshot{Title: "Renamed Lamp", Price: 140, FetchedAt: testNow}
	updated, err := env.svc.RefreshProduct(ctx, env.tenant, a.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Product)
	assert.Equal(t, "Renamed Lamp", updated.Product.Title)

	// Unlike creation, a refresh surfaces the catalog error.
	env.fetcher.err = errors.New("catalog unavailable")
	_, err = env.svc.RefreshProduct(ctx, env.tenant, a.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog unavailable")
}

func TestGetReportsEffectiveStatus(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()

	a := env.createAuction(t, nil)
	env.repo.mu.Lock()
	env.repo.auctions[a.ID].EndTime = testNow.Add(-time.Minute)
	env.repo.mu.Unlock()

	got, err := env.svc.Get(ctx, env.tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnded, got.Status)

	// The stored row keeps its last written status.
	env.repo.mu.Lock()
	assert.Equal(t, models.StatusActive, env.repo.auctions[a.ID].Status)
	env.repo.mu.Unlock()
}

func TestCurrentBid(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, nil)

	_, err := env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "alice", Amount: 120})
	require.NoError(t, err)

	// Cache hit.
	amount, err := env.svc.CurrentBid(ctx, env.tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 120.0, amount)

	// Cache miss falls back to the repository and backfills.
	require.NoError(t, env.cache.RemoveCurrentBid(ctx, env.tenant.ShopDomain, a.ID.String()))
	amount, err = env.svc.CurrentBid(ctx, env.tenant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 120.0, amount)

	cached, ok, _ := env.cache.GetCurrentBid(ctx, env.tenant.ShopDomain, a.ID.String())
	require.True(t, ok)
	assert.Equal(t, 120.0, cached)
}

func TestInstallStore(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()

	_, err := env.svc.InstallStore(ctx, &models.InstallStoreRequest{AccessToken: "shpat_x"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = env.svc.InstallStore(ctx, &models.InstallStoreRequest{ShopDomain: "x.myshopify.com"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	store, err := env.svc.InstallStore(ctx, &models.InstallStoreRequest{
		ShopDomain:  "x.myshopify.com",
		AccessToken: "shpat_x",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PlanTrial, store.Plan)
	assert.True(t, store.Installed)
}

func TestTenantIsolation(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, nil)

	other := &models.Store{ShopDomain: "other.myshopify.com", Plan: models.PlanPro, Installed: true}
	_, err := env.svc.Get(ctx, other, a.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = env.svc.PlaceBid(ctx, other, a.ID, &models.BidRequest{Bidder: "mallory", Amount: 500})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCurrentBidTenantIsolation(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, nil)

	// Populate the cache through the owning tenant's bid.
	_, err := env.svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "alice", Amount: 150})
	require.NoError(t, err)

	// Another shop must not see the cached value for a foreign auction.
	other := &models.Store{ShopDomain: "other.myshopify.com", Plan: models.PlanPro, Installed: true}
	_, err = env.svc.CurrentBid(ctx, other, a.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// And the probe must not have backfilled anything under the other shop.
	_, ok, _ := env.cache.GetCurrentBid(ctx, other.ShopDomain, a.ID.String())
	assert.False(t, ok)
}

// staleStartRepo serves reads with an outdated starting bid, as a
// concurrent starting-bid raise between the service pre-check and the
// conditional update would.
type staleStartRepo struct {
	*fakeRepo
	staleStartingBid float64
}

func (r *staleStartRepo) GetAuction(ctx context.Context, shopDomain string, id uuid.UUID) (*models.Auction, error) {
	a, err := r.fakeRepo.GetAuction(ctx, shopDomain, id)
	if err != nil {
		return nil, err
	}
	a.StartingBid = r.staleStartingBid
	return a, nil
}

func TestPlaceBidStaleStartingBidRead(t *testing.T) {
	env := newTestEnv(t, models.PlanPro)
	ctx := context.Background()
	a := env.createAuction(t, func(r *models.CreateAuctionRequest) { r.StartingBid = 200 })

	stale := &staleStartRepo{fakeRepo: env.repo, staleStartingBid: 100}
	svc := NewService(stale, env.stores, env.cache, env.pub, env.fetcher, zap.NewNop())
	svc.now = func() time.Time { return testNow }

	// 150 clears the stale pre-check floor of 100 but the stored floor is
	// 200; the acceptance condition alone must reject it.
	_, err := svc.PlaceBid(ctx, env.tenant, a.ID, &models.BidRequest{Bidder: "alice", Amount: 150})
	require.ErrorIs(t, err, errs.ErrInvalidBid)

	bids, err := env.repo.ListBids(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, bids)
}
