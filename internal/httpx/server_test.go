package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-commerce-inventory/internal/cart"
	"github.com/ariefcatur/go-commerce-inventory/internal/inventory"
	"github.com/ariefcatur/go-commerce-inventory/internal/orders"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestWriteErrInsufficientStock(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, &inventory.InsufficientStockError{ProductID: "p1", Requested: 5, Available: 2})

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "insufficient_stock", body["error"])
	assert.Equal(t, "p1", body["product"])
	assert.EqualValues(t, 2, body["available"])
}

func TestWriteErrCheckoutRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, &orders.CheckoutRejectedError{Details: []orders.StockShortfall{
		{ProductID: "p1", Required: 3, Available: 1},
	}})

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "checkout_rejected", body["error"])
	require.Len(t, body["details"], 1)
}

func TestWriteErrInvalidTransition(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, &orders.TransitionError{OrderID: "o1", From: orders.StatusShipped, To: orders.StatusCancelled})

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_status_transition", body["error"])
	assert.Equal(t, "shipped", body["from"])
	assert.Equal(t, "cancelled", body["to"])
}

func TestWriteErrNotFound(t *testing.T) {
	for _, err := range []error{
		fmt.Errorf("%w: p9", inventory.ErrProductNotFound),
		orders.ErrOrderNotFound,
		cart.ErrItemNotFound,
	} {
		rec := httptest.NewRecorder()
		writeErr(rec, err)
		assert.Equal(t, http.StatusNotFound, rec.Code, "for %v", err)
	}
}

func TestWriteErrEmptyCart(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, orders.ErrEmptyCart)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteErrRetryable(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		rec := httptest.NewRecorder()
		writeErr(rec, fmt.Errorf("tx failed: %w", &pgconn.PgError{Code: code}))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "for code %s", code)
	}
}

func TestWriteErrDefault(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireUser(t *testing.T) {
	var seen string
	h := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = userID(r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, seen)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("X-User-ID", "u-42")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "u-42", seen)
}
