package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/storefront/internal/cart"
	"github.com/oakmart/storefront/internal/events"
	"github.com/oakmart/storefront/internal/redisx"
	"github.com/oakmart/storefront/internal/session"
)

type fakeOrders struct {
	placeCalls int
	placeErr   error
	existed    bool
	orders     map[string]Order
	statusErr  error
	setStatus  []string
}

func (f *fakeOrders) PlaceOrderTx(ctx context.Context, externalID, userID, addrID string) (string, int, []events.ItemPrice, bool, error) {
	f.placeCalls++
	if f.placeErr != nil {
		return "", 0, nil, false, f.placeErr
	}
	return "o1", 1500, []events.ItemPrice{{ProductID: "p1", Qty: 3, PriceCents: 500}}, f.existed, nil
}

func (f *fakeOrders) GetOrder(ctx context.Context, orderID string) (Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrders) OrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) SetStatus(ctx context.Context, orderID string, to Status) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.setStatus = append(f.setStatus, orderID+":"+string(to))
	return nil
}

type fakeRedis struct {
	data map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type fakeInvalidator struct{ keys []string }

func (f *fakeInvalidator) Invalidate(ctx context.Context, keys ...string) error {
	f.keys = append(f.keys, keys...)
	return nil
}

type fakePublisher struct{ values [][]byte }

func (f *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	f.values = append(f.values, value)
}

var buyer = session.User{ID: "u1", Role: session.RoleBuyer}

func newCheckout(repo *fakeOrders) (*Service, *fakeRedis, *fakeInvalidator, *fakePublisher) {
	r := newFakeRedis()
	inv := &fakeInvalidator{}
	pub := &fakePublisher{}
	return &Service{Repo: repo, Redis: r, Cache: inv, Producer: pub, ServiceName: "test-api"}, r, inv, pub
}

func TestPlaceOrderGuards(t *testing.T) {
	repo := &fakeOrders{}
	svc, _, _, pub := newCheckout(repo)

	_, err := svc.PlaceOrder(context.Background(), session.User{}, "", "", "")
	assert.ErrorIs(t, err, cart.ErrLoginRequired)

	_, err = svc.PlaceOrder(context.Background(), session.User{ID: "s1", Role: session.RoleSeller}, "", "", "")
	assert.ErrorIs(t, err, cart.ErrNotBuyer)

	assert.Zero(t, repo.placeCalls, "guard violations never reach the repository")
	assert.Empty(t, pub.values)
}

func TestPlaceOrderSuccess(t *testing.T) {
	repo := &fakeOrders{}
	svc, r, inv, pub := newCheckout(repo)

	res, err := svc.PlaceOrder(context.Background(), buyer, "ext-1", "addr-1", "req-1")
	require.NoError(t, err)
	assert.Equal(t, "o1", res.OrderID)
	assert.Equal(t, 1500, res.TotalCents)
	assert.False(t, res.Idempotent)
	assert.Equal(t, "/orders/o1", res.Redirect)

	assert.Contains(t, inv.keys, cart.Key("u1"), "cart listing goes stale after checkout")
	assert.Contains(t, inv.keys, redisx.KeyProducts, "stock changed, product listing goes stale")
	assert.Contains(t, r.data, fmt.Sprintf(redisx.KeyIdemOrderCreate, "ext-1"))
	assert.Contains(t, r.data, fmt.Sprintf(redisx.KeyOrderStatus, "o1"))

	require.Len(t, pub.values, 1, "exactly one OrderCreated event")
	var env events.Envelope
	require.NoError(t, json.Unmarshal(pub.values[0], &env))
	assert.Equal(t, events.EventOrderCreated, env.EventType)
	var p events.OrderCreatedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "o1", p.OrderID)
	assert.Equal(t, 1500, p.TotalCents)
}

func TestPlaceOrderFailureChangesNothing(t *testing.T) {
	repo := &fakeOrders{placeErr: ErrEmptyCart}
	svc, r, inv, pub := newCheckout(repo)

	_, err := svc.PlaceOrder(context.Background(), buyer, "ext-1", "", "")
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, pub.values)
	assert.Empty(t, inv.keys)
	assert.Empty(t, r.data)
}

func TestPlaceOrderReplayServedFromRedis(t *testing.T) {
	repo := &fakeOrders{}
	svc, _, _, pub := newCheckout(repo)

	first, err := svc.PlaceOrder(context.Background(), buyer, "ext-1", "", "")
	require.NoError(t, err)

	second, err := svc.PlaceOrder(context.Background(), buyer, "ext-1", "", "")
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.TotalCents, second.TotalCents)
	assert.Equal(t, 1, repo.placeCalls, "the replay never reaches Postgres")
	assert.Len(t, pub.values, 1, "and never re-publishes")
}

func TestPlaceOrderIdempotentReplay(t *testing.T) {
	repo := &fakeOrders{existed: true}
	svc, _, _, pub := newCheckout(repo)

	res, err := svc.PlaceOrder(context.Background(), buyer, "ext-1", "", "")
	require.NoError(t, err)
	assert.True(t, res.Idempotent)
	assert.Empty(t, pub.values, "replays do not re-publish")
}

func TestGetOrderOwnership(t *testing.T) {
	repo := &fakeOrders{orders: map[string]Order{
		"o1": {ID: "o1", UserID: "u1", Status: StatusCreated, TotalCents: 1500},
	}}
	svc, r, _, _ := newCheckout(repo)
	ctx := context.Background()

	o, err := svc.Get(ctx, buyer, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, o.Status)
	assert.Contains(t, r.data, fmt.Sprintf(redisx.KeyOrderStatus, "o1"), "read primes the cache")

	_, err = svc.Get(ctx, session.User{ID: "u2", Role: session.RoleBuyer}, "o1")
	assert.ErrorIs(t, err, ErrNotYourOrder)

	_, err = svc.Get(ctx, session.User{ID: "a1", Role: session.RoleAdmin}, "o1")
	assert.NoError(t, err, "admins can read any order")

	_, err = svc.Get(ctx, session.User{}, "o1")
	assert.ErrorIs(t, err, cart.ErrLoginRequired)
}

func TestGetOrderServedFromCache(t *testing.T) {
	repo := &fakeOrders{orders: map[string]Order{}}
	svc, r, _, _ := newCheckout(repo)

	cached, _ := json.Marshal(Order{ID: "o9", UserID: "u1", Status: StatusPaid, TotalCents: 900})
	r.data[fmt.Sprintf(redisx.KeyOrderStatus, "o9")] = string(cached)

	o, err := svc.Get(context.Background(), buyer, "o9")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status, "cache hit skips Postgres entirely")
}

func TestAdvance(t *testing.T) {
	repo := &fakeOrders{orders: map[string]Order{}}
	svc, r, _, _ := newCheckout(repo)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Advance(ctx, buyer, "o1", StatusPaid), ErrForbiddenRole)
	assert.ErrorIs(t, svc.Advance(ctx, session.User{}, "o1", StatusPaid), cart.ErrLoginRequired)

	r.data[fmt.Sprintf(redisx.KeyOrderStatus, "o1")] = `{"id":"o1"}`
	sellerUser := session.User{ID: "s1", Role: session.RoleSeller}
	require.NoError(t, svc.Advance(ctx, sellerUser, "o1", StatusPaid))
	assert.Equal(t, []string{"o1:PAID"}, repo.setStatus)
	assert.NotContains(t, r.data, fmt.Sprintf(redisx.KeyOrderStatus, "o1"),
		"stale cached copy is dropped")
}
