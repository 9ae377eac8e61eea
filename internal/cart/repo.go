package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is what the service needs from persistence. The pgx Repo is the
// real one; tests plug in fakes.
type Store interface {
	Upsert(ctx context.Context, userID, productID string, qty int) error
	Items(ctx context.Context, userID string) ([]Item, error)
	SetQty(ctx context.Context, userID, productID string, qty int) error
	Delete(ctx context.Context, userID, productID string) (bool, error)
}

// Repo persists cart lines in Postgres. cart_items carries
// UNIQUE(user_id, product_id), so one line per (buyer, product) holds by
// schema, not by application bookkeeping.
type Repo struct{ DB *pgxpool.Pool }

// Upsert creates the line or increments its quantity. The product row is
// locked first so the stock check and the increment see the same stock
// value; a combined quantity above stock rolls the whole thing back.
func (r *Repo) Upsert(ctx context.Context, userID, productID string, qty int) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stock int
	var approved bool
	err = tx.QueryRow(ctx, `SELECT stock, approved FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&stock, &approved)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("load product %s: %w", productID, err)
	}
	if !approved {
		return ErrProductUnavailable
	}

	var newQty int
	err = tx.QueryRow(ctx, `
		INSERT INTO cart_items(id, user_id, product_id, qty)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty, updated_at = now()
		RETURNING qty`,
		uuid.NewString(), userID, productID, qty).Scan(&newQty)
	if err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	if newQty > stock {
		return ErrOutOfStock
	}
	return tx.Commit(ctx)
}

func (r *Repo) Items(ctx context.Context, userID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT ci.id, ci.product_id, p.name, p.price_cents, ci.qty
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Name, &it.PriceCents, &it.Qty); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) SetQty(ctx context.Context, userID, productID string, qty int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE cart_items SET qty = $3, updated_at = now()
		WHERE user_id = $1 AND product_id = $2`, userID, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotInCart
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, userID, productID string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
