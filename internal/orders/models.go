package orders

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Order is an immutable snapshot of a committed purchase. Prices, names and
// SKUs are captured at commit time; later product edits never reach it.
type Order struct {
	ID            string        `json:"id"`
	OrderNumber   string        `json:"order_number"`
	UserID        string        `json:"user_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	SubtotalCents int           `json:"subtotal_cents"`
	TaxCents      int           `json:"tax_cents"`
	ShippingCents int           `json:"shipping_cents"`
	DiscountCents int           `json:"discount_cents"`
	TotalCents    int           `json:"total_cents"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ShippedAt     *time.Time    `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time    `json:"delivered_at,omitempty"`
	Items         []OrderItem   `json:"items,omitempty"`
}

type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int    `json:"unit_price_cents"`
	SubtotalCents  int    `json:"subtotal_cents"`
	ProductName    string `json:"product_name"`
	ProductSKU     string `json:"product_sku"`
}

// StatusChange is one audit record in the order's status history.
type StatusChange struct {
	OrderID   string    `json:"order_id"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
	ActorID   string    `json:"actor_id"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Total is computed once at commit and never recomputed from live state.
func Total(subtotal, tax, shipping, discount int) int {
	return subtotal + tax + shipping - discount
}

// NewOrderNumber derives a human-readable order number from the commit time
// and the owning user. Uniqueness is enforced by the order_number constraint,
// not here; the caller regenerates on collision.
func NewOrderNumber(now time.Time, userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return fmt.Sprintf("ORD%s%06d", now.UTC().Format("20060102150405"), h.Sum32()%1000000)
}
