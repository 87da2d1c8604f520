package orders

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 30, 45, 0, time.UTC)

	n := NewOrderNumber(now, "user-1")
	require.True(t, strings.HasPrefix(n, "ORD20250615093045"))
	assert.Len(t, n, 3+14+6)

	// Same inputs, same number; uniqueness is the DB constraint's job.
	assert.Equal(t, n, NewOrderNumber(now, "user-1"))

	// Different users at the same instant get different suffixes.
	assert.NotEqual(t, n, NewOrderNumber(now, "user-2"))

	// The timestamp is rendered in UTC regardless of the input zone.
	jakarta := time.FixedZone("WIB", 7*3600)
	assert.Equal(t, n, NewOrderNumber(now.In(jakarta), "user-1"))
}

func TestTotal(t *testing.T) {
	assert.Equal(t, 11500, Total(10000, 1000, 1500, 1000))
	assert.Equal(t, 0, Total(0, 0, 0, 0))
	assert.Equal(t, 10000, Total(10000, 0, 0, 0))
	// A discount larger than the rest goes negative; callers validate inputs.
	assert.Equal(t, -500, Total(1000, 0, 0, 1500))
}

func TestTransitionErrorUnwrap(t *testing.T) {
	err := &TransitionError{OrderID: "o1", From: StatusShipped, To: StatusCancelled}
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "shipped -> cancelled")
}

func TestCheckoutRejectedErrorMessage(t *testing.T) {
	err := &CheckoutRejectedError{Details: []StockShortfall{
		{ProductID: "p1", Required: 3, Available: 1},
		{ProductID: "p2", Required: 2, Available: 0},
	}}
	msg := err.Error()
	assert.Contains(t, msg, "p1 (required 3, available 1)")
	assert.Contains(t, msg, "p2 (required 2, available 0)")
}
