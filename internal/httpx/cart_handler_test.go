package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/storefront/internal/cache"
	"github.com/oakmart/storefront/internal/cart"
	"github.com/oakmart/storefront/internal/session"
)

type fakeCartStore struct {
	lines   []cart.Item
	upserts int
}

func (f *fakeCartStore) Upsert(ctx context.Context, userID, productID string, qty int) error {
	f.upserts++
	f.lines = append(f.lines, cart.Item{ProductID: productID, PriceCents: 500, Qty: qty})
	return nil
}

func (f *fakeCartStore) Items(ctx context.Context, userID string) ([]cart.Item, error) {
	return f.lines, nil
}

func (f *fakeCartStore) SetQty(ctx context.Context, userID, productID string, qty int) error {
	return nil
}

func (f *fakeCartStore) Delete(ctx context.Context, userID, productID string) (bool, error) {
	return true, nil
}

type fakeCacheRedis struct{ data map[string]string }

func (f *fakeCacheRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCacheRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCacheRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func cartRouter(u session.User, store *fakeCartStore) *chi.Mux {
	c := cache.New(&fakeCacheRedis{data: map[string]string{}})
	svc := &cart.Service{Repo: store, Cache: c}
	r := chi.NewRouter()
	r.Use(injectUser(u))
	(&CartHandler{Svc: svc, Cache: c}).Register(r)
	return r
}

func TestAddToCartAnonymous(t *testing.T) {
	store := &fakeCartStore{}
	r := cartRouter(session.User{}, store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader(`{"product_id":"p1"}`))
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, store.upserts, "no write call is ever issued")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, LoginPath, body["redirect"])
}

func TestAddToCartWrongRole(t *testing.T) {
	store := &fakeCartStore{}
	r := cartRouter(session.User{ID: "s1", Role: session.RoleSeller}, store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader(`{"product_id":"p1"}`))
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, store.upserts)
}

func TestAddToCartDefaultsQtyToOne(t *testing.T) {
	store := &fakeCartStore{}
	r := cartRouter(session.User{ID: "u1", Role: session.RoleBuyer}, store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader(`{"product_id":"p1"}`))
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, store.lines, 1)
	assert.Equal(t, 1, store.lines[0].Qty)
}

func TestBuyNowReturnsRedirect(t *testing.T) {
	store := &fakeCartStore{}
	r := cartRouter(session.User{ID: "u1", Role: session.RoleBuyer}, store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cart/buy-now", strings.NewReader(`{"product_id":"p1","qty":1}`))
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, cart.CheckoutPath, body["redirect"])
}

func TestListCartReadsThroughCache(t *testing.T) {
	store := &fakeCartStore{lines: []cart.Item{{ProductID: "p1", PriceCents: 500, Qty: 3}}}
	r := cartRouter(session.User{ID: "u1", Role: session.RoleBuyer}, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var c cart.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1500, c.TotalCents)
}

func TestAddToCartRejectsBadJSON(t *testing.T) {
	store := &fakeCartStore{}
	r := cartRouter(session.User{ID: "u1", Role: session.RoleBuyer}, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader("{oops")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, store.upserts)
}

func TestErrBodyMapping(t *testing.T) {
	code, body := errBody(cart.ErrLoginRequired)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, LoginPath, body["redirect"])

	code, _ = errBody(cart.ErrMutationInFlight)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = errBody(cart.ErrOutOfStock)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = errBody(errors.New("anything else"))
	assert.Equal(t, http.StatusInternalServerError, code)
}
