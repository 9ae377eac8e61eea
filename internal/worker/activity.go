package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/oakmart/storefront/internal/assistant"
	"github.com/oakmart/storefront/internal/events"
	kafkax "github.com/oakmart/storefront/internal/kafka"
	"github.com/oakmart/storefront/internal/redisx"
)

type redisAPI interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	ZIncrBy(ctx context.Context, key string, increment float64, member string) *redis.FloatCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Service folds tracked activity into per-session recommendation signal
// sets that the assistant reads back. Purchases weigh more than views.
type Service struct {
	Redis       redisAPI
	ServiceName string
}

var weights = map[string]float64{
	events.ActivityView:      1,
	events.ActivitySearch:    1,
	events.ActivityAddToCart: 3,
	events.ActivityPurchase:  5,
}

// HandleActivityTracked is the consumer handler for the activity topic.
// Returning nil commits the offset, so only transient Redis errors bubble
// up for redelivery.
func (s *Service) HandleActivityTracked(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// Poison message; committing it is better than looping on it.
		return nil
	}
	if env.EventType != events.EventActivityTracked {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if n, _ := s.Redis.Exists(ctx, dkey).Result(); n > 0 {
		return nil
	}

	p, err := kafkax.UnwrapPayload[events.ActivityTrackedPayload](env.Payload)
	if err != nil {
		return nil
	}
	if p.SessionID == "" || p.ProductID == "" {
		return nil
	}

	w, ok := weights[p.Type]
	if !ok {
		w = 1
	}
	key := assistant.RecsKey(p.SessionID)
	if err := s.Redis.ZIncrBy(ctx, key, w, p.ProductID).Err(); err != nil {
		// Dedup key not set yet, so the redelivery retries the increment.
		return err
	}
	_ = s.Redis.Expire(ctx, key, redisx.TTLRecs).Err()
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}
