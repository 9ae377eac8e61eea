package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakmart/storefront/internal/events"
)

type Repo struct{ DB *pgxpool.Pool }

// PlaceOrderTx converts the buyer's current cart into an order in one
// transaction: re-price every line from the products table (never from the
// cached listing), lock and decrement stock, write the order and its items,
// empty the cart. Idempotent via external_id: a replay returns the
// existing order untouched.
func (r *Repo) PlaceOrderTx(ctx context.Context, externalID, userID, shippingAddressID string) (orderID string, total int, items []events.ItemPrice, existed bool, err error) {
	row := r.DB.QueryRow(ctx, `SELECT id, total_cents FROM orders WHERE external_id=$1`, externalID)
	if err = row.Scan(&orderID, &total); err == nil {
		return orderID, total, nil, true, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return "", 0, nil, false, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", 0, nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT ci.product_id, ci.qty, p.price_cents, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at
		FOR UPDATE OF p`, userID)
	if err != nil {
		return "", 0, nil, false, err
	}
	type line struct {
		productID  string
		qty        int
		priceCents int
		stock      int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.qty, &l.priceCents, &l.stock); err != nil {
			rows.Close()
			return "", 0, nil, false, err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", 0, nil, false, err
	}
	if len(lines) == 0 {
		return "", 0, nil, false, ErrEmptyCart
	}

	for _, l := range lines {
		if l.stock < l.qty {
			return "", 0, nil, false, fmt.Errorf("%w: product %s", ErrInsufficientStock, l.productID)
		}
		total += l.priceCents * l.qty
	}

	orderID = uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, user_id, status, total_cents, shipping_address_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`,
		orderID, externalID, userID, StatusCreated, total, shippingAddressID)
	if err != nil {
		return "", 0, nil, false, err
	}

	for _, l := range lines {
		if _, err = tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, qty, price_cents)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), orderID, l.productID, l.qty, l.priceCents); err != nil {
			return "", 0, nil, false, err
		}
		if _, err = tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2 WHERE id = $1`,
			l.productID, l.qty); err != nil {
			return "", 0, nil, false, err
		}
		items = append(items, events.ItemPrice{ProductID: l.productID, Qty: l.qty, PriceCents: l.priceCents})
	}

	if _, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID); err != nil {
		return "", 0, nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", 0, nil, false, err
	}
	return orderID, total, items, false, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, external_id, user_id, status, total_cents,
		       COALESCE(shipping_address_id, ''), created_at, updated_at
		FROM orders WHERE id=$1`, orderID).
		Scan(&o.ID, &o.ExternalID, &o.UserID, &o.Status, &o.TotalCents,
			&o.ShippingAddressID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *Repo) OrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, external_id, user_id, status, total_cents,
		       COALESCE(shipping_address_id, ''), created_at, updated_at
		FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.ExternalID, &o.UserID, &o.Status, &o.TotalCents,
			&o.ShippingAddressID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetStatus applies a transition after re-checking it against the current
// row under lock.
func (r *Repo) SetStatus(ctx context.Context, orderID string, to Status) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if !CanTransition(cur, to) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, cur, to)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, to); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
