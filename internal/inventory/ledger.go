// Package inventory holds the stock ledger: the only code allowed to touch
// a product's stock/reserved counters. Every primitive locks the product row
// exclusively before reading, inside a transaction the caller owns, so two
// writers can never interleave a read-modify-write on the same product.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-commerce-inventory/internal/metrics"
)

// Row is one product's counters as read under lock.
type Row struct {
	Stock    int
	Reserved int
}

func (r Row) Available() int { return r.Stock - r.Reserved }

func (r Row) check(productID string) error {
	if r.Reserved < 0 || r.Reserved > r.Stock {
		metrics.InvariantViolations.Inc()
		err := &InvariantViolationError{ProductID: productID, Stock: r.Stock, Reserved: r.Reserved}
		log.Error().
			Str("product_id", productID).
			Int("stock", r.Stock).
			Int("reserved", r.Reserved).
			Msg("stock invariant violated, rejecting operation")
		return err
	}
	return nil
}

// Lock takes the exclusive row lock for one product and returns its counters.
// The lock is held until the caller's transaction commits or rolls back.
func Lock(ctx context.Context, tx pgx.Tx, productID string) (Row, error) {
	var row Row
	err := tx.QueryRow(ctx,
		`SELECT stock, reserved FROM products WHERE id = $1 FOR UPDATE`,
		productID).Scan(&row.Stock, &row.Reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return Row{}, err
	}
	if err := row.check(productID); err != nil {
		return Row{}, err
	}
	return row, nil
}

// LockAll locks every listed product in one query, in ascending id order.
// The fixed order is what keeps two multi-product transactions from
// deadlocking on overlapping product sets.
func LockAll(ctx context.Context, tx pgx.Tx, productIDs []string) (map[string]Row, error) {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	rows, err := tx.Query(ctx,
		`SELECT id, stock, reserved FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locked := make(map[string]Row, len(ids))
	for rows.Next() {
		var id string
		var row Row
		if err := rows.Scan(&id, &row.Stock, &row.Reserved); err != nil {
			return nil, err
		}
		if err := row.check(id); err != nil {
			return nil, err
		}
		locked[id] = row
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
	}
	return locked, nil
}

// Reserve grants qty units to a cart iff stock - reserved >= qty.
// On shortfall it returns *InsufficientStockError and mutates nothing.
// On success the returned Row is the post-mutation state.
func Reserve(ctx context.Context, tx pgx.Tx, productID string, qty int) (Row, error) {
	if qty <= 0 {
		return Row{}, fmt.Errorf("reserve: qty must be positive, got %d", qty)
	}
	row, err := Lock(ctx, tx, productID)
	if err != nil {
		return Row{}, err
	}
	if row.Available() < qty {
		return Row{}, &InsufficientStockError{ProductID: productID, Requested: qty, Available: row.Available()}
	}
	row.Reserved += qty
	return row, setReserved(ctx, tx, productID, row.Reserved)
}

// Release returns qty reserved units to the pool, clamping at zero so an
// over-release can never drive reserved negative. Safe to call repeatedly.
func Release(ctx context.Context, tx pgx.Tx, productID string, qty int) (Row, error) {
	if qty <= 0 {
		return Row{}, fmt.Errorf("release: qty must be positive, got %d", qty)
	}
	row, err := Lock(ctx, tx, productID)
	if err != nil {
		return Row{}, err
	}
	row.Reserved -= qty
	if row.Reserved < 0 {
		row.Reserved = 0
	}
	return row, setReserved(ctx, tx, productID, row.Reserved)
}

// Commit converts a reservation into a permanent deduction at order
// finalization: stock -= qty, reserved -= qty (clamped). Checkout has
// already locked the row via LockAll; re-reading under the same
// transaction reuses that lock.
func Commit(ctx context.Context, tx pgx.Tx, productID string, qty int) (Row, error) {
	if qty <= 0 {
		return Row{}, fmt.Errorf("commit: qty must be positive, got %d", qty)
	}
	row, err := Lock(ctx, tx, productID)
	if err != nil {
		return Row{}, err
	}
	if row.Stock < qty {
		return Row{}, &InsufficientStockError{ProductID: productID, Requested: qty, Available: row.Stock}
	}
	row.Stock -= qty
	row.Reserved -= qty
	if row.Reserved < 0 {
		row.Reserved = 0
	}
	_, err = tx.Exec(ctx,
		`UPDATE products SET stock = $2, reserved = $3, updated_at = now() WHERE id = $1`,
		productID, row.Stock, row.Reserved)
	return row, err
}

// Restore puts qty units back into owned stock (order cancellation).
// Stock only grows here; there is no upper bound to enforce.
func Restore(ctx context.Context, tx pgx.Tx, productID string, qty int) (Row, error) {
	if qty <= 0 {
		return Row{}, fmt.Errorf("restore: qty must be positive, got %d", qty)
	}
	row, err := Lock(ctx, tx, productID)
	if err != nil {
		return Row{}, err
	}
	row.Stock += qty
	_, err = tx.Exec(ctx,
		`UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`,
		productID, row.Stock)
	return row, err
}

func setReserved(ctx context.Context, tx pgx.Tx, productID string, reserved int) error {
	_, err := tx.Exec(ctx,
		`UPDATE products SET reserved = $2, updated_at = now() WHERE id = $1`,
		productID, reserved)
	return err
}
