package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oakmart/storefront/internal/redisx"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// User is the resolved identity for a request. Read-only here: sessions are
// minted by the auth service, this package only looks them up. Role never
// changes within a session.
type User struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Approved bool   `json:"approved"`
	Rejected bool   `json:"rejected"`
}

// Anonymous reports whether no session was resolved for the request.
func (u User) Anonymous() bool { return u.ID == "" }

var ErrNoSession = errors.New("no session")

type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Reader resolves session tokens against the shared session store.
type Reader struct {
	R redisAPI
}

func NewReader(r redisAPI) *Reader { return &Reader{R: r} }

// Resolve looks the token up. Unknown or empty tokens yield ErrNoSession;
// a revoked session fails closed on the very next request since nothing is
// cached here.
func (r *Reader) Resolve(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNoSession
	}
	s, err := r.R.Get(ctx, fmt.Sprintf(redisx.KeySession, token)).Result()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNoSession
	}
	if err != nil {
		return User{}, fmt.Errorf("session lookup: %w", err)
	}
	var u User
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return User{}, fmt.Errorf("decode session: %w", err)
	}
	if u.ID == "" {
		return User{}, ErrNoSession
	}
	return u, nil
}

type ctxKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the request's user. The zero User (Anonymous) comes
// back when no session middleware ran or the token did not resolve.
func FromContext(ctx context.Context) User {
	u, _ := ctx.Value(ctxKey{}).(User)
	return u
}
