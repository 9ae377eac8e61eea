package events

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated    = "OrderCreated"
	EventActivityTracked = "ActivityTracked"
)

// Activity types accepted by the tracker. The worker weighs them when
// folding activity into recommendation signals.
const (
	ActivityView      = "view"
	ActivitySearch    = "search"
	ActivityAddToCart = "add_to_cart"
	ActivityPurchase  = "purchase"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type OrderCreatedPayload struct {
	OrderID    string      `json:"order_id"`
	ExternalID string      `json:"external_id"`
	UserID     string      `json:"user_id"`
	Items      []ItemPrice `json:"items"`
	TotalCents int         `json:"total_cents"`
}

type ActivityTrackedPayload struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	Type       string    `json:"type"`
	ProductID  string    `json:"product_id,omitempty"`
	CategoryID string    `json:"category_id,omitempty"`
	Query      string    `json:"query,omitempty"`
	At         time.Time `json:"at"`
}
