package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bidlyapplaunch/bidly-sub001/internal/errs"
	"github.com/bidlyapplaunch/bidly-sub001/internal/models"
)

type storeCtxKey struct{}

func withStore(ctx context.Context, s *models.Store) context.Context {
	return context.WithValue(ctx, storeCtxKey{}, s)
}

// StoreFrom returns the tenant resolved by TenantMiddleware.
func StoreFrom(ctx context.Context) (*models.Store, bool) {
	s, ok := ctx.Value(storeCtxKey{}).(*models.Store)
	return s, ok
}

// TenantMiddleware resolves the request's shop domain to a store record
// and threads it through the request context. The last-access bump is
// fire and forget.
func (h *Handler) TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shop := r.Header.Get("X-Shop-Domain")
		if shop == "" {
			shop = r.URL.Query().Get("shop")
		}
		if shop == "" {
			respondError(w, http.StatusUnauthorized, "shop domain is required")
			return
		}

		store, err := h.stores.GetStore(r.Context(), shop)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				respondError(w, http.StatusUnauthorized, "unknown shop")
				return
			}
			h.log.Error("store lookup failed", zap.String("shop", shop), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to resolve shop")
			return
		}
		if !store.Installed {
			respondError(w, http.StatusUnauthorized, "app is not installed for this shop")
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := h.stores.TouchStore(ctx, shop); err != nil {
				h.log.Warn("failed to bump last access", zap.String("shop", shop), zap.Error(err))
			}
		}()

		next.ServeHTTP(w, r.WithContext(withStore(r.Context(), store)))
	})
}

// loggingMiddleware logs every request with its duration.
func loggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.RequestURI),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// corsMiddleware allows the embedded admin and storefront origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Shop-Domain")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
