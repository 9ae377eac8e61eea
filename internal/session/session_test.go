package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/storefront/internal/redisx"
)

type fakeRedis struct {
	data map[string]string
	err  error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func TestResolve(t *testing.T) {
	r := &fakeRedis{data: map[string]string{
		fmt.Sprintf(redisx.KeySession, "tok-1"): `{"id":"u1","role":"buyer","approved":true}`,
		fmt.Sprintf(redisx.KeySession, "tok-2"): `{not json`,
	}}
	reader := NewReader(r)

	u, err := reader.Resolve(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, RoleBuyer, u.Role)
	assert.True(t, u.Approved)
	assert.False(t, u.Anonymous())

	_, err = reader.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = reader.Resolve(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = reader.Resolve(context.Background(), "tok-2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}

func TestResolveRedisError(t *testing.T) {
	reader := NewReader(&fakeRedis{err: errors.New("redis down")})
	_, err := reader.Resolve(context.Background(), "tok")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithUser(context.Background(), User{ID: "u1", Role: RoleSeller})
	u := FromContext(ctx)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, RoleSeller, u.Role)

	assert.True(t, FromContext(context.Background()).Anonymous())
}
