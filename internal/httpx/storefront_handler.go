package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/storefront/internal/cache"
	"github.com/oakmart/storefront/internal/catalog"
	"github.com/oakmart/storefront/internal/redisx"
	"github.com/oakmart/storefront/internal/session"
)

type ProductLister interface {
	List(ctx context.Context) ([]catalog.Product, error)
}

// StorefrontHandler serves the public product listing and the current
// session, the two reads every page starts from.
type StorefrontHandler struct {
	Products ProductLister
	Cache    *cache.Cache
}

func (h *StorefrontHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/session", h.currentSession)
}

func (h *StorefrontHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := cache.Get(ctx, h.Cache, redisx.KeyProducts, redisx.TTLProducts,
		func(ctx context.Context) ([]catalog.Product, error) {
			return h.Products.List(ctx)
		})
	if errors.Is(err, cache.ErrStale) {
		w.Header().Set("X-Cache", "stale")
		writeJSON(w, http.StatusOK, ps)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *StorefrontHandler) currentSession(w http.ResponseWriter, r *http.Request) {
	u := session.FromContext(r.Context())
	if u.Anonymous() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    "login required",
			"redirect": LoginPath,
		})
		return
	}
	writeJSON(w, http.StatusOK, u)
}
