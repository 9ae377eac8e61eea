package cart

import "errors"

var (
	// Guard violations. Neither reaches the repository.
	ErrLoginRequired = errors.New("login required")
	ErrNotBuyer      = errors.New("only buyers can use the cart")

	ErrInvalidQty         = errors.New("quantity must be at least 1")
	ErrNotInCart          = errors.New("product not in cart")
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product not available")
	ErrOutOfStock         = errors.New("insufficient stock")

	// A second mutation for the same user while one is still in flight.
	ErrMutationInFlight = errors.New("cart mutation already in flight")
)
