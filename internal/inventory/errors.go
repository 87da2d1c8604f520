package inventory

import (
	"errors"
	"fmt"
)

var ErrProductNotFound = errors.New("product not found")

// InsufficientStockError is a policy outcome, not a fault: the caller asked
// for more units than the pool can grant. Nothing was mutated.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvariantViolationError reports counters in a state the locking discipline
// makes impossible. It is a fatal integrity fault: the operation is rejected
// and no repair is attempted.
type InvariantViolationError struct {
	ProductID string
	Stock     int
	Reserved  int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("stock invariant violated for product %s: stock=%d reserved=%d",
		e.ProductID, e.Stock, e.Reserved)
}
