package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/storefront/internal/cache"
	"github.com/oakmart/storefront/internal/cart"
	"github.com/oakmart/storefront/internal/redisx"
	"github.com/oakmart/storefront/internal/session"
)

type CartHandler struct {
	Svc   *cart.Service
	Cache *cache.Cache
}

type addToCartReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type updateQtyReq struct {
	Qty int `json:"qty"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(RequireRole(session.RoleBuyer))
		r.Get("/", h.list)
		r.Post("/", h.add)
		r.Post("/buy-now", h.buyNow)
		r.Delete("/", h.clear)
		r.Put("/{productID}", h.update)
		r.Delete("/{productID}", h.remove)
	})
	r.Route("/guest/cart", func(r chi.Router) {
		r.Post("/", h.guestAdd)
		r.Get("/", h.guestList)
		r.Delete("/{productID}", h.guestRemove)
		r.With(RequireRole(session.RoleBuyer)).Post("/migrate", h.guestMigrate)
	})
}

func (h *CartHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	u := session.FromContext(ctx)
	c, err := cache.Get(ctx, h.Cache, cart.Key(u.ID), redisx.TTLCart,
		func(ctx context.Context) (cart.Cart, error) {
			return h.Svc.List(ctx, u)
		})
	if errors.Is(err, cache.ErrStale) {
		w.Header().Set("X-Cache", "stale")
		writeJSON(w, http.StatusOK, c)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addToCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing product_id"})
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.Add(ctx, session.FromContext(ctx), req.ProductID, req.Qty); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) buyNow(w http.ResponseWriter, r *http.Request) {
	var req addToCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing product_id"})
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	redirect, err := h.Svc.BuyNow(ctx, session.FromContext(ctx), req.ProductID, req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirect": redirect})
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateQtyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Svc.UpdateQuantity(ctx, session.FromContext(ctx), chi.URLParam(r, "productID"), req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.Remove(ctx, session.FromContext(ctx), chi.URLParam(r, "productID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Svc.Clear(ctx, session.FromContext(ctx)); err != nil {
		// Partial failure: some deletes landed, the rest show up on refetch.
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) guestAdd(w http.ResponseWriter, r *http.Request) {
	var req addToCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing product_id"})
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := ensureGuestID(w, r)
	if err := h.Svc.Guest.Add(ctx, id, req.ProductID, req.Qty); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) guestList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := guestID(r)
	if id == "" {
		writeJSON(w, http.StatusOK, map[string]any{"items": []cart.GuestLine{}})
		return
	}
	lines, err := h.Svc.Guest.Items(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": lines})
}

func (h *CartHandler) guestRemove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if id := guestID(r); id != "" {
		if err := h.Svc.Guest.Remove(ctx, id, chi.URLParam(r, "productID")); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) guestMigrate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Svc.MigrateGuest(ctx, session.FromContext(ctx), guestID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
