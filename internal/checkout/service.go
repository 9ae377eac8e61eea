package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/oakmart/storefront/internal/cart"
	"github.com/oakmart/storefront/internal/events"
	kafkax "github.com/oakmart/storefront/internal/kafka"
	"github.com/oakmart/storefront/internal/redisx"
	"github.com/oakmart/storefront/internal/session"
)

type OrderStore interface {
	PlaceOrderTx(ctx context.Context, externalID, userID, shippingAddressID string) (string, int, []events.ItemPrice, bool, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]Order, error)
	SetStatus(ctx context.Context, orderID string, to Status) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

type statusRedis interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Service turns a validated cart into an order. The repo transaction is the
// whole story: on failure nothing changes and the caller stays on the
// checkout page.
type Service struct {
	Repo        OrderStore
	Redis       statusRedis
	Cache       Invalidator
	Producer    Publisher
	ServiceName string
}

type PlaceResult struct {
	OrderID    string `json:"order_id"`
	TotalCents int    `json:"total_cents"`
	Idempotent bool   `json:"idempotent"`
	Redirect   string `json:"redirect"`
}

func orderKey(orderID string) string { return fmt.Sprintf(redisx.KeyOrderStatus, orderID) }

func requireBuyer(u session.User) error {
	if u.Anonymous() {
		return cart.ErrLoginRequired
	}
	if u.Role != session.RoleBuyer {
		return cart.ErrNotBuyer
	}
	return nil
}

// PlaceOrder submits the buyer's cart. On success the result carries the
// confirmation redirect; the cart listing is invalidated so the next read
// sees the emptied cart from Postgres.
func (s *Service) PlaceOrder(ctx context.Context, u session.User, externalID, shippingAddressID, traceID string) (PlaceResult, error) {
	if err := requireBuyer(u); err != nil {
		return PlaceResult{}, err
	}
	if externalID == "" {
		externalID = uuid.NewString()
	} else if res, ok := s.replayResult(ctx, externalID); ok {
		// Fast path: a replayed external_id skips Postgres entirely. The
		// external_id lookup inside the transaction stays as the backstop
		// when this key has expired.
		return res, nil
	}

	orderID, total, items, existed, err := s.Repo.PlaceOrderTx(ctx, externalID, u.ID, shippingAddressID)
	if err != nil {
		return PlaceResult{}, err
	}
	s.primeOrderCache(ctx, Order{ID: orderID, ExternalID: externalID, UserID: u.ID, Status: StatusCreated, TotalCents: total})
	_ = s.Cache.Invalidate(ctx, cart.Key(u.ID), redisx.KeyProducts)

	if !existed && s.Producer != nil {
		ev := events.Envelope{
			EventID:       uuid.NewString(),
			EventType:     events.EventOrderCreated,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      s.ServiceName,
			TraceID:       traceID,
			CorrelationID: orderID,
		}
		ev.Payload = kafkax.MustMarshal(events.OrderCreatedPayload{
			OrderID:    orderID,
			ExternalID: externalID,
			UserID:     u.ID,
			Items:      items,
			TotalCents: total,
		})
		s.Producer.Publish(events.PartitionKey(orderID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(events.EventOrderCreated)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}

	res := PlaceResult{
		OrderID:    orderID,
		TotalCents: total,
		Idempotent: existed,
		Redirect:   "/orders/" + orderID,
	}
	if b, err := json.Marshal(res); err == nil {
		_ = s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyIdemOrderCreate, externalID), b, redisx.TTLIdempotency).Err()
	}
	return res, nil
}

// replayResult serves a previously completed placement for this external_id.
func (s *Service) replayResult(ctx context.Context, externalID string) (PlaceResult, bool) {
	raw, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyIdemOrderCreate, externalID)).Result()
	if err != nil || raw == "" {
		return PlaceResult{}, false
	}
	var res PlaceResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil || res.OrderID == "" {
		return PlaceResult{}, false
	}
	res.Idempotent = true
	return res, true
}

func (s *Service) primeOrderCache(ctx context.Context, o Order) {
	if b, err := json.Marshal(o); err == nil {
		_ = s.Redis.Set(ctx, orderKey(o.ID), b, redisx.TTLStatusCache).Err()
	}
}

// Get returns one order, Redis first then Postgres. Buyers only ever see
// their own orders; admins see all.
func (s *Service) Get(ctx context.Context, u session.User, orderID string) (Order, error) {
	if u.Anonymous() {
		return Order{}, cart.ErrLoginRequired
	}

	if raw, err := s.Redis.Get(ctx, orderKey(orderID)).Result(); err == nil && raw != "" {
		var o Order
		if err := json.Unmarshal([]byte(raw), &o); err == nil {
			if err := s.authorize(u, o); err != nil {
				return Order{}, err
			}
			return o, nil
		}
	}

	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := s.authorize(u, o); err != nil {
		return Order{}, err
	}
	s.primeOrderCache(ctx, o)
	return o, nil
}

func (s *Service) authorize(u session.User, o Order) error {
	if u.Role == session.RoleAdmin {
		return nil
	}
	if o.UserID != u.ID {
		return ErrNotYourOrder
	}
	return nil
}

func (s *Service) Orders(ctx context.Context, u session.User) ([]Order, error) {
	if err := requireBuyer(u); err != nil {
		return nil, err
	}
	return s.Repo.OrdersByUser(ctx, u.ID)
}

// Advance moves an order through its status machine. Sellers and admins
// only; the repo re-validates the transition under lock.
func (s *Service) Advance(ctx context.Context, u session.User, orderID string, to Status) error {
	if u.Anonymous() {
		return cart.ErrLoginRequired
	}
	if u.Role != session.RoleSeller && u.Role != session.RoleAdmin {
		return ErrForbiddenRole
	}
	if err := s.Repo.SetStatus(ctx, orderID, to); err != nil {
		return err
	}
	// Drop the cached copy; the next read re-primes from Postgres.
	_ = s.Redis.Del(ctx, orderKey(orderID)).Err()
	return nil
}
