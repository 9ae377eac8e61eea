package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/storefront/internal/checkout"
	"github.com/oakmart/storefront/internal/session"
)

type CheckoutHandler struct {
	Svc *checkout.Service
}

type placeOrderReq struct {
	ExternalID        string `json:"external_id"`
	ShippingAddressID string `json:"shipping_address_id"`
}

type advanceReq struct {
	Status string `json:"status"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.With(RequireRole(session.RoleBuyer)).Post("/checkout", h.place)
	r.Route("/orders", func(r chi.Router) {
		r.Use(RequireRole(session.RoleBuyer))
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
	})
	r.Route("/seller", func(r chi.Router) {
		r.Use(RequireRole(session.RoleSeller))
		r.Put("/orders/{id}/status", h.advance)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireRole(session.RoleAdmin))
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}/status", h.advance)
	})
}

func (h *CheckoutHandler) place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Svc.PlaceOrder(ctx, session.FromContext(ctx), req.ExternalID,
		req.ShippingAddressID, r.Header.Get("X-Request-Id"))
	if err != nil {
		// The order did not happen; the cart is untouched and the client
		// stays on the checkout page.
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Svc.Get(ctx, session.FromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *CheckoutHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orders, err := h.Svc.Orders(ctx, session.FromContext(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *CheckoutHandler) advance(w http.ResponseWriter, r *http.Request) {
	var req advanceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Svc.Advance(ctx, session.FromContext(ctx), chi.URLParam(r, "id"),
		checkout.Status(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
