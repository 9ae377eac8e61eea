package httpx

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/oakmart/storefront/internal/redisx"
	"github.com/oakmart/storefront/internal/session"
)

const (
	SessionCookie = "sf_session"
	GuestCookie   = "sf_guest"
)

// Resolver looks a session token up. *session.Reader is the real one.
type Resolver interface {
	Resolve(ctx context.Context, token string) (session.User, error)
}

// WithSession resolves the session cookie on every request and stashes the
// user in the context. Nothing is cached between requests, so a session
// revoked elsewhere stops working on the very next request here.
func WithSession(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
				u, err := res.Resolve(r.Context(), c.Value)
				switch {
				case err == nil:
					r = r.WithContext(session.WithUser(r.Context(), u))
				case !errors.Is(err, session.ErrNoSession):
					log.Printf("session resolve: %v", err)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionToken returns the raw cookie value, empty when absent.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// ensureGuestID returns the visitor's guest id, minting the cookie on first
// contact.
func ensureGuestID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(GuestCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     GuestCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(redisx.TTLGuestCart.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// guestID reads the guest cookie without minting one.
func guestID(r *http.Request) string {
	if c, err := r.Cookie(GuestCookie); err == nil {
		return c.Value
	}
	return ""
}
