// Package catalog is the read side of the product table. Nothing here takes
// row locks: stock figures served from this package may be slightly stale,
// and every correctness-critical check re-reads under lock in the ledger.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-commerce-inventory/internal/inventory"
	"github.com/ariefcatur/go-commerce-inventory/internal/redisx"
)

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	Stock      int       `json:"stock"`
	Reserved   int       `json:"reserved"`
	Available  int       `json:"available"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Repo struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// GetProduct always hits the database. Use it wherever the answer feeds a
// decision; the cached variant below is for browse traffic only.
func (r *Repo) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT id, sku, name, price_cents, stock, reserved, created_at, updated_at
	                           FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.Reserved, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", inventory.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	p.Available = p.Stock - p.Reserved
	if p.Available < 0 {
		p.Available = 0
	}
	return &p, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, sku, name, price_cents, stock, reserved, created_at, updated_at
	                              FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.Reserved, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Available = p.Stock - p.Reserved
		if p.Available < 0 {
			p.Available = 0
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CachedDetail is cache-aside for product detail pages. The payload can be
// up to TTLProductDetail stale, stock included.
func (r *Repo) CachedDetail(ctx context.Context, id string) (json.RawMessage, error) {
	key := fmt.Sprintf(redisx.KeyProductDetail, id)
	if r.Redis != nil {
		if s, err := r.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			return json.RawMessage(s), nil
		}
	}

	p, err := r.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if r.Redis != nil {
		_ = r.Redis.Set(ctx, key, b, redisx.TTLProductDetail).Err()
	}
	return b, nil
}

// InvalidateDetail is best-effort: a miss just means one stale TTL window.
func (r *Repo) InvalidateDetail(ctx context.Context, ids ...string) {
	if r.Redis == nil {
		return
	}
	for _, id := range ids {
		_ = r.Redis.Del(ctx, fmt.Sprintf(redisx.KeyProductDetail, id)).Err()
	}
}
