package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ariefcatur/go-commerce-inventory/internal/cart"
	"github.com/ariefcatur/go-commerce-inventory/internal/inventory"
	"github.com/ariefcatur/go-commerce-inventory/internal/orders"
	"github.com/ariefcatur/go-commerce-inventory/internal/postgres"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type ctxKey int

const userIDKey ctxKey = 0

// RequireUser resolves the caller from the X-User-ID header. Identity is an
// external collaborator; the header is trusted to be set by the gateway.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get("X-User-ID")
		if uid == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing X-User-ID"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey).(string)
	return uid
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the core error taxonomy onto HTTP statuses. Insufficient
// stock and bad transitions are conflicts the client can act on; transient
// lock conflicts ask the client to retry.
func writeErr(w http.ResponseWriter, err error) {
	var insufficient *inventory.InsufficientStockError
	var rejected *orders.CheckoutRejectedError
	var transition *orders.TransitionError

	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient_stock",
			"product":   insufficient.ProductID,
			"requested": insufficient.Requested,
			"available": insufficient.Available,
		})
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "checkout_rejected",
			"details": rejected.Details,
		})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "invalid_status_transition",
			"from":  transition.From,
			"to":    transition.To,
		})
	case errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cart is empty"})
	case postgres.IsRetryable(err):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "transient conflict, retry"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
