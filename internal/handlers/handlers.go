// Package handlers exposes the auction API over HTTP. Responses use the
// {success, data|message} envelope throughout.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/bidlyapplaunch/bidly-sub001/internal/errs"
	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
	"github.com/bidlyapplaunch/bidly-sub001/internal/service"
)

// AuctionService is the application surface the HTTP layer drives.
type AuctionService interface {
	Create(ctx context.Context, tenant *models.Store, req *models.CreateAuctionRequest) (*models.Auction, error)
	List(ctx context.Context, tenant *models.Store, f models.AuctionFilter) ([]models.Auction, error)
	Get(ctx context.Context, tenant *models.Store, id uuid.UUID) (*models.Auction, error)
	Update(ctx context.Context, tenant *models.Store, id uuid.UUID, req *models.UpdateAuctionRequest) (*models.Auction, error)
	Delete(ctx context.Context, tenant *models.Store, id uuid.UUID) error
	PlaceBid(ctx context.Context, tenant *models.Store, id uuid.UUID, req *models.BidRequest) (*models.Auction, error)
	BuyNow(ctx context.Context, tenant *models.Store, id uuid.UUID, req *models.BuyNowRequest) (*models.Auction, error)
	Relist(ctx context.Context, tenant *models.Store, id uuid.UUID, req *models.RelistAuctionRequest) (*models.Auction, error)
	RefreshProduct(ctx context.Context, tenant *models.Store, id uuid.UUID) (*models.Auction, error)
	CurrentBid(ctx context.Context, tenant *models.Store, id uuid.UUID) (float64, error)
	InstallStore(ctx context.Context, req *models.InstallStoreRequest) (*models.Store, error)
}

// Handler contains the HTTP request handlers.
type Handler struct {
	svc    AuctionService
	stores service.StoreRepository
	log    *zap.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(svc AuctionService, stores service.StoreRepository, log *zap.Logger) *Handler {
	return &Handler{svc: svc, stores: stores, log: log}
}

// Routes configures the router.
func (h *Handler) Routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	// Install happens before a tenant exists, so it sits outside the
	// tenant-scoped subrouter.
	public := router.PathPrefix("/api/v1").Subrouter()
	public.HandleFunc("/stores", h.InstallStore).Methods(http.MethodPost)

	shop := router.PathPrefix("/api/v1").Subrouter()
	shop.Use(h.TenantMiddleware)
	shop.HandleFunc("/store", h.GetStore).Methods(http.MethodGet)
	shop.HandleFunc("/auctions", h.CreateAuction).Methods(http.MethodPost)
	shop.HandleFunc("/auctions", h.ListAuctions).Methods(http.MethodGet)
	shop.HandleFunc("/auctions/{id}", h.GetAuction).Methods(http.MethodGet)
	shop.HandleFunc("/auctions/{id}", h.UpdateAuction).Methods(http.MethodPut)
	shop.HandleFunc("/auctions/{id}", h.DeleteAuction).Methods(http.MethodDelete)
	shop.HandleFunc("/auctions/{id}/bid", h.PlaceBid).Methods(http.MethodPost)
	shop.HandleFunc("/auctions/{id}/buy-now", h.BuyNow).Methods(http.MethodPost)
	shop.HandleFunc("/auctions/{id}/relist", h.RelistAuction).Methods(http.MethodPut)
	shop.HandleFunc("/auctions/{id}/refresh-product", h.RefreshProduct).Methods(http.MethodPost)
	shop.HandleFunc("/auctions/{id}/current-bid", h.CurrentBid).Methods(http.MethodGet)

	// Middleware only runs on matched routes and every route above is
	// method-restricted, so preflight requests need their own matcher.
	// corsMiddleware answers them before this handler is reached.
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	router.Use(loggingMiddleware(h.log))
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "bidly-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// InstallStore records a completed installation.
func (h *Handler) InstallStore(w http.ResponseWriter, r *http.Request) {
	var req models.InstallStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store, err := h.svc.InstallStore(r.Context(), &req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusCreated, store)
}

// GetStore returns the resolved tenant record, token redacted.
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	store, ok := StoreFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "shop domain is required")
		return
	}
	respondData(w, http.StatusOK, store)
}

// CreateAuction creates an auction for the tenant.
func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	store, ok := StoreFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "shop domain is required")
		return
	}

	var req models.CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	auction, err := h.svc.Create(r.Context(), store, &req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusCreated, auction)
}

// ListAuctions lists the tenant's auctions.
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	store, ok := StoreFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "shop domain is required")
		return
	}

	f := models.AuctionFilter{
		Status: models.Status(r.URL.Query().Get("status")),
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("skip")); err == nil {
		f.Skip = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		f.Limit = v
	}

	auctions, err := h.svc.List(r.Context(), store, f)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if auctions == nil {
		auctions = []models.Auction{}
	}

	respondData(w, http.StatusOK, auctions)
}

// GetAuction returns one auction with its bid history.
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	store, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	auction, err := h.svc.Get(r.Context(), store, id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, auction)
}

// UpdateAuction applies a partial update.
func (h *Handler) UpdateAuction(w http.ResponseWriter, r *http.Request) {
	store, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	var req models.UpdateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	auction, err := h.svc.Update(r.Context(), store, id, &req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, auction)
}

// DeleteAuction hard-deletes a bid-free auction.
func (h *Handler) DeleteAuction(w http.ResponseWriter, r *http.Request) {
	store, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), store, id); err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondMessage(w, http.StatusOK, "auction deleted")
}

// PlaceBid handles bid placement.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	store, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	var req models.BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	auction, err := h.svc.PlaceBid(r.Context(), store, id, &req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, auction)
}

// BuyNow ends the auction at the buy-now price.
func (h *Handler) BuyNow(w http.ResponseWriter, r *http.Request) {
	store, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	var req models.BuyNowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	auction, err := h.svc.BuyNow(r.Context(), store, id, &req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, auction)
}

// RelistAuction reopens a finished, bid-free auction.
func (h *Handler) RelistAuction(w http.ResponseWriter, r *http.Request) {
	store, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	var req models.RelistAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	auction, err := h.svc.Relist(r.Context(), store, id, &req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, auction)
}

// RefreshProduct re-fetches the product snapshot; fetch errors surface
// to the caller here.
func (h *Handler) RefreshProduct(w http.ResponseWriter, r *http.Request) {
	store, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	auction, err := h.svc.RefreshProduct(r.Context(), store, id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, auction)
}

// CurrentBid serves the storefront polling path.
func (h *Handler) CurrentBid(w http.ResponseWriter, r *http.Request) {
	store, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	amount, err := h.svc.CurrentBid(r.Context(), store, id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, map[string]float64{"current_bid": amount})
}

func (h *Handler) tenantAndID(w http.ResponseWriter, r *http.Request) (*models.Store, uuid.UUID, bool) {
	store, ok := StoreFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "shop domain is required")
		return nil, uuid.Nil, false
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid auction id")
		return nil, uuid.Nil, false
	}

	return store, id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrInvalidState),
		errors.Is(err, errs.ErrInvalidBid),
		errors.Is(err, errs.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrPlanLimit):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		h.log.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func respondData(w http.ResponseWriter, statusCode int, data interface{}) {
	respondJSON(w, statusCode, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, envelope{Success: true, Message: message})
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, envelope{Success: false, Message: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
