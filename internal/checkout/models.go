package checkout

import (
	"errors"
	"time"
)

type Order struct {
	ID                string    `json:"id"`
	ExternalID        string    `json:"external_id"`
	UserID            string    `json:"user_id"`
	Status            Status    `json:"status"`
	TotalCents        int       `json:"total_cents"`
	ShippingAddressID string    `json:"shipping_address_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type OrderItem struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrOrderNotFound     = errors.New("order not found")
	ErrNotYourOrder      = errors.New("order belongs to another user")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBadTransition     = errors.New("invalid status transition")
	ErrForbiddenRole     = errors.New("sellers or admins only")
)
