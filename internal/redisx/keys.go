package redisx

import "time"

const (
	// Idempotency for checkout: idem:checkout:{user_id}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", ...}
	KeyOrderStatus = "order_status:%s"

	// Cached product detail (stale-tolerant, read path only):
	// product_detail:{product_id} -> JSON
	KeyProductDetail = "product_detail:%s"
)

var (
	TTLIdempotency   = 24 * time.Hour
	TTLStatusCache   = 5 * time.Minute
	TTLProductDetail = time.Hour
)
