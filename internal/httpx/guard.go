package httpx

import (
	"net/http"

	"github.com/oakmart/storefront/internal/session"
)

// LoginPath is where unauthenticated requests to guarded routes are sent.
const LoginPath = "/auth"

// RequireRole gates a route family on the resolved session's role. The
// check runs on every request, never cached, so role state is as fresh as
// the session store. Anonymous callers get the login redirect; a wrong role
// gets a role-appropriate home. The guarded handler never runs in either
// case.
func RequireRole(role session.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := session.FromContext(r.Context())
			if u.Anonymous() {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error":    "login required",
					"redirect": LoginPath,
				})
				return
			}
			if u.Role != role {
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":    "forbidden",
					"redirect": roleHome(u.Role),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func roleHome(role session.Role) string {
	switch role {
	case session.RoleSeller:
		return "/seller"
	case session.RoleAdmin:
		return "/admin"
	default:
		return "/"
	}
}
