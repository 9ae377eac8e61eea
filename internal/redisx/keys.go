package redisx

import "time"

const (
	// Auth session: session:{token} -> {"id":..., "role":...}
	KeySession = "session:%s"

	// Cached cart listing per buyer: cart:{user_id}
	KeyCart = "cart:%s"

	// Cached public product listing (single key, no params).
	KeyProducts = "products"

	// Guest cart hash: guestcart:{guest_id}, field product_id -> qty
	KeyGuestCart = "guestcart:%s"

	// Cached order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Idempotency for order placement: idem:order:create:{external_id} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Assistant session per auth token or guest id: assistant:session:{owner} -> session_id
	KeyAssistantSession = "assistant:session:%s"

	// Assistant conversation transcript: assistant:conv:{session_id} -> JSON array
	KeyAssistantConv = "assistant:conv:%s"

	// Recommendation signal per session: assistant:recs:{session_id} (sorted set, member = product_id)
	KeyAssistantRecs = "assistant:recs:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLSession     = 7 * 24 * time.Hour
	TTLCart        = 10 * time.Minute
	TTLProducts    = 5 * time.Minute
	TTLGuestCart   = 7 * 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLIdempotency = 24 * time.Hour
	TTLAssistant   = 24 * time.Hour
	TTLRecs        = 48 * time.Hour
	TTLDedup       = 48 * time.Hour
)
