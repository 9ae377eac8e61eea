package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	CategoryID string    `json:"category_id"`
	PriceCents int       `json:"price_cents"`
	Stock      int       `json:"stock"`
	SellerID   string    `json:"seller_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var ErrNotFound = errors.New("product not found")

type Repo struct{ DB *pgxpool.Pool }

// List returns approved products only; unapproved listings never reach the
// storefront.
func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, category_id, price_cents, stock, seller_id, created_at, updated_at
		FROM products
		WHERE approved
		ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.PriceCents,
			&p.Stock, &p.SellerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, sku, name, category_id, price_cents, stock, seller_id, created_at, updated_at
		FROM products WHERE id = $1 AND approved`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.PriceCents,
			&p.Stock, &p.SellerID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}
