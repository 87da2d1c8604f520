package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-commerce-inventory/internal/orders"
	"github.com/ariefcatur/go-commerce-inventory/internal/redisx"
)

type OrdersHandler struct {
	Service *orders.Service
	Repo    *orders.Repo
	Redis   *redis.Client
}

type checkoutReq struct {
	TaxCents       int    `json:"tax_cents"`
	ShippingCents  int    `json:"shipping_cents"`
	DiscountCents  int    `json:"discount_cents"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type checkoutResp struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	TotalCents  int    `json:"total_cents"`
	Idempotent  bool   `json:"idempotent,omitempty"`
}

type transitionReq struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type cancelReq struct {
	Reason string `json:"reason,omitempty"`
}

// statusCacheEntry is the cached shape behind the status-polling endpoint.
// The owner id never leaves the server; it gates who may read the entry.
type statusCacheEntry struct {
	Status orders.Status `json:"status"`
	UserID string        `json:"user_id"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/checkout", h.checkout)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getStatus)
		r.Get("/orders/{id}/history", h.history)
		r.Post("/orders/{id}/cancel", h.cancel)
		r.Post("/orders/{id}/status", h.transition)
	})
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	uid := userID(r)

	// Fast-path idempotency: a repeated key returns the original order.
	// The database stays the source of truth.
	var idemKey string
	if req.IdempotencyKey != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemCheckout, uid, req.IdempotencyKey)
		if orderID, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && orderID != "" {
			o, err := h.Repo.GetOrder(ctx, orderID)
			if err == nil {
				writeJSON(w, http.StatusOK, checkoutResp{
					OrderID: o.ID, OrderNumber: o.OrderNumber, TotalCents: o.TotalCents, Idempotent: true,
				})
				return
			}
		}
	}

	o, err := h.Service.Checkout(ctx, uid, orders.CheckoutInput{
		TaxCents:      req.TaxCents,
		ShippingCents: req.ShippingCents,
		DiscountCents: req.DiscountCents,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	if idemKey != "" {
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	}
	h.cacheStatus(ctx, o)

	writeJSON(w, http.StatusCreated, checkoutResp{
		OrderID: o.ID, OrderNumber: o.OrderNumber, TotalCents: o.TotalCents,
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.GetOrder(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if o.UserID != userID(r) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus is the polling endpoint for order tracking, served cache-first.
// A hit can be up to TTLStatusCache stale. Someone else's order answers 404
// on both paths, same as getOrder.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	uid := userID(r)

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			var entry statusCacheEntry
			if json.Unmarshal([]byte(s), &entry) == nil && entry.UserID != "" {
				if entry.UserID != uid {
					writeErr(w, orders.ErrOrderNotFound)
					return
				}
				writeJSON(w, http.StatusOK, map[string]orders.Status{"status": entry.Status})
				return
			}
		}
	}

	o, err := h.ownedOrder(ctx, orderID, uid)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, map[string]orders.Status{"status": o.Status})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Repo.ListOrders(ctx, userID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) history(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.ownedOrder(ctx, orderID, userID(r)); err != nil {
		writeErr(w, err)
		return
	}
	out, err := h.Repo.StatusHistory(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req cancelReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	uid := userID(r)

	if _, err := h.ownedOrder(ctx, orderID, uid); err != nil {
		writeErr(w, err)
		return
	}
	o, err := h.Service.Cancel(ctx, orderID, uid, req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req transitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	uid := userID(r)

	if _, err := h.ownedOrder(ctx, orderID, uid); err != nil {
		writeErr(w, err)
		return
	}
	o, err := h.Service.Transition(ctx, orderID, to, uid, req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) ownedOrder(ctx context.Context, orderID, uid string) (*orders.Order, error) {
	o, err := h.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != uid {
		return nil, orders.ErrOrderNotFound
	}
	return o, nil
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(statusCacheEntry{Status: o.Status, UserID: o.UserID})
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
