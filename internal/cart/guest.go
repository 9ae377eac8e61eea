package cart

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oakmart/storefront/internal/redisx"
)

// GuestLine is one product/quantity pair in an anonymous visitor's cart.
type GuestLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type guestRedis interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// GuestStore keeps anonymous carts in Redis only. It is a deliberately
// separate mode from the authenticated cart: no guard, no Postgres, no
// price validation until the lines migrate at login.
type GuestStore struct {
	R guestRedis
}

func guestKey(guestID string) string { return fmt.Sprintf(redisx.KeyGuestCart, guestID) }

func (g *GuestStore) Add(ctx context.Context, guestID, productID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQty
	}
	key := guestKey(guestID)
	if err := g.R.HIncrBy(ctx, key, productID, int64(qty)).Err(); err != nil {
		return fmt.Errorf("guest cart add: %w", err)
	}
	_ = g.R.Expire(ctx, key, redisx.TTLGuestCart).Err()
	return nil
}

func (g *GuestStore) Remove(ctx context.Context, guestID, productID string) error {
	return g.R.HDel(ctx, guestKey(guestID), productID).Err()
}

func (g *GuestStore) Items(ctx context.Context, guestID string) ([]GuestLine, error) {
	m, err := g.R.HGetAll(ctx, guestKey(guestID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]GuestLine, 0, len(m))
	for pid, q := range m {
		qty, err := strconv.Atoi(q)
		if err != nil || qty < 1 {
			// Corrupt field: skip it rather than fail the whole cart.
			continue
		}
		out = append(out, GuestLine{ProductID: pid, Qty: qty})
	}
	return out, nil
}

func (g *GuestStore) Drop(ctx context.Context, guestID string) error {
	return g.R.Del(ctx, guestKey(guestID)).Err()
}
