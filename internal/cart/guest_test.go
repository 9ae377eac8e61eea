package cart

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/storefront/internal/session"
)

type fakeGuestRedis struct {
	hashes  map[string]map[string]string
	dropped []string
}

func newFakeGuestRedis() *fakeGuestRedis {
	return &fakeGuestRedis{hashes: map[string]map[string]string{}}
}

func (f *fakeGuestRedis) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	cur, _ := strconv.ParseInt(h[field], 10, 64)
	cur += incr
	h[field] = strconv.FormatInt(cur, 10)
	return redis.NewIntResult(cur, nil)
}

func (f *fakeGuestRedis) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	var n int64
	if h, ok := f.hashes[key]; ok {
		for _, fd := range fields {
			if _, ok := h[fd]; ok {
				delete(h, fd)
				n++
			}
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeGuestRedis) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	return redis.NewMapStringStringResult(f.hashes[key], nil)
}

func (f *fakeGuestRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.hashes[k]; ok {
			delete(f.hashes, k)
			n++
		}
		f.dropped = append(f.dropped, k)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeGuestRedis) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func TestGuestAddAndList(t *testing.T) {
	g := &GuestStore{R: newFakeGuestRedis()}
	ctx := context.Background()

	require.NoError(t, g.Add(ctx, "g1", "p1", 2))
	require.NoError(t, g.Add(ctx, "g1", "p1", 1))
	require.NoError(t, g.Add(ctx, "g1", "p2", 1))
	assert.ErrorIs(t, g.Add(ctx, "g1", "p3", 0), ErrInvalidQty)

	lines, err := g.Items(ctx, "g1")
	require.NoError(t, err)
	byID := map[string]int{}
	for _, l := range lines {
		byID[l.ProductID] = l.Qty
	}
	assert.Equal(t, map[string]int{"p1": 3, "p2": 1}, byID)
}

func TestGuestItemsSkipsCorruptFields(t *testing.T) {
	r := newFakeGuestRedis()
	r.hashes[guestKey("g1")] = map[string]string{"p1": "2", "p2": "junk", "p3": "-1"}
	g := &GuestStore{R: r}

	lines, err := g.Items(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "p1", lines[0].ProductID)
}

func TestMigrateGuest(t *testing.T) {
	r := newFakeGuestRedis()
	guest := &GuestStore{R: r}
	ctx := context.Background()
	require.NoError(t, guest.Add(ctx, "g1", "p1", 2))
	require.NoError(t, guest.Add(ctx, "g1", "gone", 1)) // no longer sold

	store := newFakeStore(map[string]int{"p1": 500})
	inv := &fakeInvalidator{}
	svc := &Service{Repo: store, Cache: inv, Guest: guest}

	u := session.User{ID: "u1", Role: session.RoleBuyer}
	require.NoError(t, svc.MigrateGuest(ctx, u, "g1"))

	c, err := svc.List(ctx, u)
	require.NoError(t, err)
	require.Len(t, c.Items, 1, "unavailable products don't make the jump")
	assert.Equal(t, "p1", c.Items[0].ProductID)
	assert.Equal(t, 2, c.Items[0].Qty)

	lines, err := guest.Items(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, lines, "guest copy is dropped after migration")
}

// A transient failure mid-migration must not let the retry replay lines that
// already landed: the add-or-increment upsert would double them.
func TestMigrateGuestRetryAfterTransientFailure(t *testing.T) {
	r := newFakeGuestRedis()
	guest := &GuestStore{R: r}
	ctx := context.Background()
	require.NoError(t, guest.Add(ctx, "g1", "p1", 2))
	require.NoError(t, guest.Add(ctx, "g1", "p2", 1))

	store := newFakeStore(map[string]int{"p1": 500, "p2": 300})
	store.failUpsertOnce = map[string]error{"p2": assert.AnError}
	svc := &Service{Repo: store, Cache: &fakeInvalidator{}, Guest: guest}
	u := session.User{ID: "u1", Role: session.RoleBuyer}

	require.Error(t, svc.MigrateGuest(ctx, u, "g1"))
	require.NoError(t, svc.MigrateGuest(ctx, u, "g1"))

	c, err := svc.List(ctx, u)
	require.NoError(t, err)
	byID := map[string]int{}
	for _, it := range c.Items {
		byID[it.ProductID] = it.Qty
	}
	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, byID,
		"guest quantities carry over exactly once")

	lines, err := guest.Items(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestMigrateGuestRequiresBuyer(t *testing.T) {
	svc := &Service{Repo: newFakeStore(nil), Cache: &fakeInvalidator{}, Guest: &GuestStore{R: newFakeGuestRedis()}}
	err := svc.MigrateGuest(context.Background(), session.User{}, "g1")
	assert.ErrorIs(t, err, ErrLoginRequired)
}
