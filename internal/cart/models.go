package cart

import (
	"context"
	"time"
)

// Cart holds one user's open line items. A user has at most one active cart;
// an inactive cart is never reused.
type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Items     []Item    `json:"items"`
}

// Item quantities map 1:1 to reserved units on their product; that mapping
// is maintained transactionally by the service, never here.
type Item struct {
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	AddedAt     time.Time `json:"added_at"`
	ProductName string    `json:"product_name"`
	PriceCents  int       `json:"price_cents"`
}

func (c *Cart) TotalCents() int {
	total := 0
	for _, it := range c.Items {
		total += it.PriceCents * it.Quantity
	}
	return total
}

// StockNotifier receives stock-change events after a successful mutation.
// Satisfied by orders.KafkaNotifier; delivery is best-effort.
type StockNotifier interface {
	StockChanged(ctx context.Context, productID string, stock, reserved int)
}
