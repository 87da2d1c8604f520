// Cart mutations and their stock reservations. Every public operation is one
// transaction: the product row is locked before its counters are read, so
// two carts racing for the last unit cannot both win.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-commerce-inventory/internal/inventory"
	"github.com/ariefcatur/go-commerce-inventory/internal/metrics"
)

var ErrItemNotFound = errors.New("item not in cart")

type Service struct {
	DB       *pgxpool.Pool
	Notifier StockNotifier // optional
}

// AddToCart reserves qty units and upserts the line item, incrementing an
// existing quantity. Insufficient stock surfaces as
// *inventory.InsufficientStockError with the cart unchanged.
func (s *Service) AddToCart(ctx context.Context, userID, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("qty must be >= 1, got %d", qty)
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cartID, err := getOrCreateCart(ctx, tx, userID)
	if err != nil {
		return err
	}

	row, err := inventory.Reserve(ctx, tx, productID, qty)
	if err != nil {
		var insufficient *inventory.InsufficientStockError
		if errors.As(err, &insufficient) {
			metrics.ReservationsRejected.Inc()
		}
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		cartID, productID, qty); err != nil {
		return err
	}
	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	metrics.ReservationsGranted.Inc()
	s.notify(ctx, productID, row)
	return nil
}

// SetQuantity moves a line item to newQty, reserving the difference when it
// grows and releasing when it shrinks. newQty < 1 removes the item.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, newQty int) error {
	if newQty < 1 {
		return s.RemoveFromCart(ctx, userID, productID)
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cartID, err := activeCartID(ctx, tx, userID)
	if err != nil {
		return err
	}
	if cartID == "" {
		return ErrItemNotFound
	}

	// Product lock first; the item row is only ever touched under it.
	row, err := inventory.Lock(ctx, tx, productID)
	if err != nil {
		return err
	}

	var current int
	err = tx.QueryRow(ctx, `SELECT quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrItemNotFound
	}
	if err != nil {
		return err
	}

	switch diff := newQty - current; {
	case diff > 0:
		row, err = inventory.Reserve(ctx, tx, productID, diff)
		if err != nil {
			var insufficient *inventory.InsufficientStockError
			if errors.As(err, &insufficient) {
				metrics.ReservationsRejected.Inc()
			}
			return err
		}
		metrics.ReservationsGranted.Inc()
	case diff < 0:
		row, err = inventory.Release(ctx, tx, productID, -diff)
		if err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID, newQty); err != nil {
		return err
	}
	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.notify(ctx, productID, row)
	return nil
}

// RemoveFromCart releases the item's held units and deletes the line.
// An absent item is a no-op, not an error.
func (s *Service) RemoveFromCart(ctx context.Context, userID, productID string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cartID, err := activeCartID(ctx, tx, userID)
	if err != nil {
		return err
	}
	if cartID == "" {
		return nil
	}

	row, err := inventory.Lock(ctx, tx, productID)
	if err != nil {
		return err
	}

	var current int
	err = tx.QueryRow(ctx, `SELECT quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	row, err = inventory.Release(ctx, tx, productID, current)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID); err != nil {
		return err
	}
	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.notify(ctx, productID, row)
	return nil
}

// ClearCart releases every held unit and deactivates the cart, all in one
// transaction. If any release fails nothing is removed and nothing is
// released.
func (s *Service) ClearCart(ctx context.Context, userID string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cartID, err := activeCartID(ctx, tx, userID)
	if err != nil {
		return err
	}
	if cartID == "" {
		return nil
	}

	after, err := releaseCartItems(ctx, tx, cartID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE carts SET active = false, updated_at = now() WHERE id = $1`, cartID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for productID, row := range after {
		s.notify(ctx, productID, row)
	}
	return nil
}

// GetCart is the read path for handlers; it takes no locks. A user with no
// active cart gets an empty value.
func (s *Service) GetCart(ctx context.Context, userID string) (*Cart, error) {
	c := &Cart{UserID: userID}
	err := s.DB.QueryRow(ctx, `
		SELECT id, active, created_at, updated_at FROM carts WHERE user_id = $1 AND active`, userID).
		Scan(&c.ID, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.Query(ctx, `
		SELECT ci.product_id, ci.quantity, ci.added_at, p.name, p.price_cents
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1 ORDER BY ci.added_at`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.AddedAt, &it.ProductName, &it.PriceCents); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

func (s *Service) notify(ctx context.Context, productID string, row inventory.Row) {
	if s.Notifier != nil {
		s.Notifier.StockChanged(ctx, productID, row.Stock, row.Reserved)
	}
}

// releaseCartItems releases every line item's hold under per-product locks,
// ascending product id, and deletes the lines. Shared by ClearCart and the
// sweeper; the caller owns the transaction.
func releaseCartItems(ctx context.Context, tx pgx.Tx, cartID string) (map[string]inventory.Row, error) {
	rows, err := tx.Query(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY product_id`, cartID)
	if err != nil {
		return nil, err
	}
	type line struct {
		productID string
		qty       int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.qty); err != nil {
			rows.Close()
			return nil, err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	after := make(map[string]inventory.Row, len(lines))
	for _, l := range lines {
		row, err := inventory.Release(ctx, tx, l.productID, l.qty)
		if err != nil {
			return nil, err
		}
		after[l.productID] = row
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return nil, err
	}
	return after, nil
}

// activeCartID locks the cart row for the rest of the transaction. Every
// writer goes through here (or the equivalent lock in checkout and the
// sweeper) before the cart's lines or the product counters, so a cart being
// deactivated cannot absorb a concurrent mutation: after the lock wait the
// active predicate is re-evaluated and the caller sees no cart at all.
func activeCartID(ctx context.Context, tx pgx.Tx, userID string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM carts WHERE user_id = $1 AND active FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func getOrCreateCart(ctx context.Context, tx pgx.Tx, userID string) (string, error) {
	id, err := activeCartID(ctx, tx, userID)
	if err != nil || id != "" {
		return id, err
	}

	// The partial unique index on (user_id) WHERE active makes the insert
	// race-safe; a concurrent creator just means we re-read their cart.
	id = uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO carts (id, user_id, active) VALUES ($1, $2, true)
		ON CONFLICT (user_id) WHERE active DO NOTHING`, id, userID); err != nil {
		return "", err
	}
	id, err = activeCartID(ctx, tx, userID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("cart for user %s vanished after insert", userID)
	}
	log.Debug().Str("user_id", userID).Str("cart_id", id).Msg("active cart ready")
	return id, nil
}

func touchCart(ctx context.Context, tx pgx.Tx, cartID string) error {
	_, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID)
	return err
}
