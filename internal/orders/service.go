// Order finalization and lifecycle. Checkout converts a cart's reservations
// into a durable order inside one all-or-nothing transaction; cancellation
// reverses a committed order the same way. Locks on the product rows are
// always taken in ascending product-id order.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-commerce-inventory/internal/catalog"
	"github.com/ariefcatur/go-commerce-inventory/internal/inventory"
	"github.com/ariefcatur/go-commerce-inventory/internal/metrics"
)

type Service struct {
	DB       *pgxpool.Pool
	Notifier Notifier
	Catalog  *catalog.Repo // optional, best-effort cache invalidation
}

type CheckoutInput struct {
	TaxCents      int
	ShippingCents int
	DiscountCents int
}

type lineItem struct {
	productID string
	qty       int
}

// Checkout commits the user's active cart into an order. The cart's
// reservations are consumed, never re-taken: validation under lock is
// against raw stock so an externally adjusted product still aborts the
// whole commit cleanly.
func (s *Service) Checkout(ctx context.Context, userID string, in CheckoutInput) (*Order, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The cart row is the lifecycle lock: checkout, cart mutation, and the
	// sweeper all take it before touching the cart's contents. The active
	// predicate is re-evaluated after a lock wait, so a cart consumed by a
	// concurrent checkout comes back as no rows here, never twice.
	var cartID string
	err = tx.QueryRow(ctx, `SELECT id FROM carts WHERE user_id = $1 AND active FOR UPDATE`, userID).Scan(&cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}

	items, err := cartLines(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.productID)
	}

	// Lock every referenced product up front, ascending. All counter reads
	// and writes below happen under these locks.
	locked, err := inventory.LockAll(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	type productMeta struct {
		sku        string
		name       string
		priceCents int
	}
	meta := make(map[string]productMeta, len(ids))
	rows, err := tx.Query(ctx, `SELECT id, sku, name, price_cents FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id string
		var m productMeta
		if err := rows.Scan(&id, &m.sku, &m.name, &m.priceCents); err != nil {
			rows.Close()
			return nil, err
		}
		meta[id] = m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Re-validate under lock. Any shortfall aborts the whole transaction.
	var shortfalls []StockShortfall
	for _, it := range items {
		if row := locked[it.productID]; row.Stock < it.qty {
			shortfalls = append(shortfalls, StockShortfall{
				ProductID: it.productID, Required: it.qty, Available: row.Stock,
			})
		}
	}
	if len(shortfalls) > 0 {
		metrics.CheckoutsRejected.Inc()
		return nil, &CheckoutRejectedError{Details: shortfalls}
	}

	now := time.Now().UTC()
	o := &Order{
		ID:            uuid.NewString(),
		OrderNumber:   NewOrderNumber(now, userID),
		UserID:        userID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		TaxCents:      in.TaxCents,
		ShippingCents: in.ShippingCents,
		DiscountCents: in.DiscountCents,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, it := range items {
		m := meta[it.productID]
		o.SubtotalCents += m.priceCents * it.qty
		o.Items = append(o.Items, OrderItem{
			ID:             uuid.NewString(),
			OrderID:        o.ID,
			ProductID:      it.productID,
			Quantity:       it.qty,
			UnitPriceCents: m.priceCents,
			SubtotalCents:  m.priceCents * it.qty,
			ProductName:    m.name,
			ProductSKU:     m.sku,
		})
	}
	o.TotalCents = Total(o.SubtotalCents, o.TaxCents, o.ShippingCents, o.DiscountCents)

	if err := insertOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price_cents,
			                         subtotal_cents, product_name, product_sku)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, it.OrderID, it.ProductID, it.Quantity, it.UnitPriceCents,
			it.SubtotalCents, it.ProductName, it.ProductSKU); err != nil {
			return nil, err
		}
	}

	after := make(map[string]inventory.Row, len(items))
	for _, it := range items {
		row, err := inventory.Commit(ctx, tx, it.productID, it.qty)
		if err != nil {
			return nil, err
		}
		after[it.productID] = row
	}

	// The cart is consumed; the next interaction creates a fresh one.
	if _, err := tx.Exec(ctx, `UPDATE carts SET active = false, updated_at = now() WHERE id = $1`, cartID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.OrdersCommitted.Inc()
	log.Info().Str("order_id", o.ID).Str("order_number", o.OrderNumber).
		Str("user_id", userID).Int("total_cents", o.TotalCents).Msg("order committed")

	if s.Catalog != nil {
		s.Catalog.InvalidateDetail(ctx, ids...)
	}
	if s.Notifier != nil {
		s.Notifier.OrderCreated(ctx, o)
		for id, row := range after {
			s.Notifier.StockChanged(ctx, id, row.Stock, row.Reserved)
		}
	}
	return o, nil
}

// Cancel reverses a committed order: every item's quantity goes back into
// owned stock. Reservations are untouched; they were already cleared when
// the order committed.
func (s *Service) Cancel(ctx context.Context, orderID, actorID, reason string) (*Order, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanCancel() {
		return nil, &TransitionError{OrderID: orderID, From: o.Status, To: StatusCancelled}
	}

	items, err := orderLines(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	after := make(map[string]inventory.Row, len(items))
	for _, it := range items {
		row, err := inventory.Restore(ctx, tx, it.productID, it.qty)
		if err != nil {
			return nil, err
		}
		after[it.productID] = row
	}

	old := o.Status
	o.Status = StatusCancelled
	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		orderID, o.Status); err != nil {
		return nil, err
	}
	if err := insertHistory(ctx, tx, orderID, old, o.Status, actorID, reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.OrdersCancelled.Inc()
	log.Info().Str("order_id", orderID).Str("actor_id", actorID).Msg("order cancelled, stock restored")

	if s.Catalog != nil {
		for id := range after {
			s.Catalog.InvalidateDetail(ctx, id)
		}
	}
	if s.Notifier != nil {
		s.Notifier.OrderStatusChanged(ctx, orderID, old, o.Status, actorID, reason)
		for id, row := range after {
			s.Notifier.StockChanged(ctx, id, row.Stock, row.Reserved)
		}
	}
	return o, nil
}

// Transition drives the forward path of the status machine
// (confirm, ship, deliver, refund). Cancellation goes through Cancel so
// stock restoration cannot be skipped.
func (s *Service) Transition(ctx context.Context, orderID string, to Status, actorID, reason string) (*Order, error) {
	if to == StatusCancelled {
		return s.Cancel(ctx, orderID, actorID, reason)
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, &TransitionError{OrderID: orderID, From: o.Status, To: to}
	}

	old := o.Status
	o.Status = to
	now := time.Now().UTC()
	switch to {
	case StatusShipped:
		o.ShippedAt = &now
		_, err = tx.Exec(ctx, `UPDATE orders SET status = $2, shipped_at = $3, updated_at = now() WHERE id = $1`,
			orderID, to, now)
	case StatusDelivered:
		o.DeliveredAt = &now
		_, err = tx.Exec(ctx, `UPDATE orders SET status = $2, delivered_at = $3, updated_at = now() WHERE id = $1`,
			orderID, to, now)
	case StatusRefunded:
		o.PaymentStatus = PaymentRefunded
		_, err = tx.Exec(ctx, `UPDATE orders SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1`,
			orderID, to, PaymentRefunded)
	default:
		_, err = tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, to)
	}
	if err != nil {
		return nil, err
	}
	if err := insertHistory(ctx, tx, orderID, old, to, actorID, reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Str("order_id", orderID).Str("from", string(old)).Str("to", string(to)).Msg("order status changed")
	if s.Notifier != nil {
		s.Notifier.OrderStatusChanged(ctx, orderID, old, to, actorID, reason)
	}
	return o, nil
}

func cartLines(ctx context.Context, tx pgx.Tx, cartID string) ([]lineItem, error) {
	rows, err := tx.Query(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY product_id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lineItem
	for rows.Next() {
		var it lineItem
		if err := rows.Scan(&it.productID, &it.qty); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func orderLines(ctx context.Context, tx pgx.Tx, orderID string) ([]lineItem, error) {
	rows, err := tx.Query(ctx,
		`SELECT product_id, quantity FROM order_items WHERE order_id = $1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lineItem
	for rows.Next() {
		var it lineItem
		if err := rows.Scan(&it.productID, &it.qty); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID string) (*Order, error) {
	var o Order
	err := tx.QueryRow(ctx, `
		SELECT id, order_number, user_id, status, payment_status,
		       subtotal_cents, tax_cents, shipping_cents, discount_cents, total_cents,
		       created_at, updated_at, shipped_at, delivered_at
		FROM orders WHERE id = $1 FOR UPDATE`, orderID).
		Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.PaymentStatus,
			&o.SubtotalCents, &o.TaxCents, &o.ShippingCents, &o.DiscountCents, &o.TotalCents,
			&o.CreatedAt, &o.UpdatedAt, &o.ShippedAt, &o.DeliveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, o *Order) error {
	// Same user committing twice in one second collides on the derived
	// number; a suffix resolves it. The unique constraint stays as the
	// final check, turning a lost race into a clean rollback.
	var taken bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, o.OrderNumber).Scan(&taken); err != nil {
		return err
	}
	if taken {
		o.OrderNumber = o.OrderNumber + "-" + uuid.NewString()[:8]
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, user_id, status, payment_status,
		                    subtotal_cents, tax_cents, shipping_cents, discount_cents, total_cents,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		o.ID, o.OrderNumber, o.UserID, o.Status, o.PaymentStatus,
		o.SubtotalCents, o.TaxCents, o.ShippingCents, o.DiscountCents, o.TotalCents,
		o.CreatedAt)
	return err
}

func insertHistory(ctx context.Context, tx pgx.Tx, orderID string, from, to Status, actorID, reason string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, old_status, new_status, actor_id, reason)
		VALUES ($1, $2, $3, $4, $5)`, orderID, from, to, actorID, reason)
	return err
}
