package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEmptyCart     = errors.New("cart is empty")

	// ErrInvalidTransition is the errors.Is target for *TransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TransitionError rejects a status change the state machine does not allow.
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition %s -> %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// StockShortfall identifies one product that failed checkout re-validation.
type StockShortfall struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// CheckoutRejectedError aborts the whole commit: no order was created and
// no counters were touched. Details name every failing product.
type CheckoutRejectedError struct {
	Details []StockShortfall
}

func (e *CheckoutRejectedError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s (required %d, available %d)", d.ProductID, d.Required, d.Available))
	}
	return "checkout rejected, insufficient stock: " + strings.Join(parts, ", ")
}
