package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-commerce-inventory/internal/metrics"
)

// Sweeper releases the reservations of carts idle past IdleAfter and
// deactivates them. Each cart is its own transaction so one failure never
// blocks the rest, and re-sweeping an already-deactivated cart is a no-op.
type Sweeper struct {
	DB        *pgxpool.Pool
	IdleAfter time.Duration
	Notifier  StockNotifier // optional
}

// Run sweeps on a fixed interval until ctx is cancelled. One sweep runs
// immediately at startup.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		n, err := s.SweepOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("cart sweep failed")
		} else if n > 0 {
			log.Info().Int("carts", n).Msg("abandoned carts released")
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// SweepOnce deactivates every abandoned cart and returns how many it swept.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.IdleAfter)
	rows, err := s.DB.Query(ctx,
		`SELECT id FROM carts WHERE active AND updated_at < $1 ORDER BY updated_at`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list abandoned carts: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	swept := 0
	for _, id := range ids {
		if err := s.sweepCart(ctx, id, cutoff); err != nil {
			log.Error().Err(err).Str("cart_id", id).Msg("sweep cart failed, continuing")
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *Sweeper) sweepCart(ctx context.Context, cartID string, cutoff time.Time) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Re-check under lock: the cart may have checked out, been cleared, or
	// been touched since we listed it.
	var userID string
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM carts WHERE id = $1 AND active AND updated_at < $2 FOR UPDATE`,
		cartID, cutoff).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
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

	metrics.CartsSwept.Inc()
	log.Info().Str("cart_id", cartID).Str("user_id", userID).
		Int("products", len(after)).Msg("abandoned cart deactivated")
	if s.Notifier != nil {
		for productID, row := range after {
			s.Notifier.StockChanged(ctx, productID, row.Stock, row.Reserved)
		}
	}
	return nil
}
