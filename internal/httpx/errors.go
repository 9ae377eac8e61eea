package httpx

import (
	"errors"
	"net/http"

	"github.com/oakmart/storefront/internal/cart"
	"github.com/oakmart/storefront/internal/checkout"
)

// errBody maps service errors to HTTP responses. Guard violations carry a
// redirect so the client knows where to send the user; everything else is a
// transient notice and nothing changed serverside.
func errBody(err error) (int, map[string]string) {
	switch {
	case errors.Is(err, cart.ErrLoginRequired):
		return http.StatusUnauthorized, map[string]string{"error": err.Error(), "redirect": LoginPath}
	case errors.Is(err, cart.ErrNotBuyer):
		return http.StatusForbidden, map[string]string{"error": err.Error()}
	case errors.Is(err, checkout.ErrForbiddenRole):
		return http.StatusForbidden, map[string]string{"error": err.Error()}
	case errors.Is(err, cart.ErrMutationInFlight):
		return http.StatusConflict, map[string]string{"error": err.Error()}
	case errors.Is(err, cart.ErrInvalidQty):
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	case errors.Is(err, cart.ErrNotInCart),
		errors.Is(err, cart.ErrProductNotFound),
		errors.Is(err, checkout.ErrOrderNotFound),
		errors.Is(err, checkout.ErrNotYourOrder):
		return http.StatusNotFound, map[string]string{"error": "not found"}
	case errors.Is(err, cart.ErrProductUnavailable),
		errors.Is(err, cart.ErrOutOfStock),
		errors.Is(err, checkout.ErrInsufficientStock),
		errors.Is(err, checkout.ErrBadTransition):
		return http.StatusConflict, map[string]string{"error": err.Error()}
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	default:
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, body := errBody(err)
	writeJSON(w, code, body)
}
