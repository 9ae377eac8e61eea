package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Served when the loader fails but a previously cached value is still held.
// Callers that see it still get a usable value and decide whether to show a
// degraded notice.
var ErrStale = errors.New("serving stale cached value")

// Rediser is the slice of the go-redis API the cache needs. *redis.Client
// satisfies it; tests substitute a map-backed fake.
type Rediser interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache is a read-through cache over Redis. Values are kept past their
// freshness window so a failing loader can fall back to the last known
// value instead of erroring the caller out.
//
// Mutations never write results into the cache; they call Invalidate and the
// next read re-loads from the source of truth.
type Cache struct {
	R Rediser

	// StaleFor bounds how long an invalidated or expired value stays
	// available as a fallback. Zero means 24h.
	StaleFor time.Duration
}

func New(r Rediser) *Cache { return &Cache{R: r} }

func (c *Cache) staleFor() time.Duration {
	if c.StaleFor > 0 {
		return c.StaleFor
	}
	return 24 * time.Hour
}

func freshKey(key string) string { return key + ":fresh" }

// Get returns the value for key, loading it when no fresh copy exists.
//
// Freshness is tracked by a marker key with the caller's TTL; the value
// itself lives longer (StaleFor). When the loader fails and a previous value
// is still present, that value is returned together with ErrStale (wrapping
// the loader error). A Redis outage degrades to calling the loader directly.
func Get[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T

	fresh, err := c.R.Get(ctx, freshKey(key)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		// Cache unavailable, go straight to the source.
		log.Printf("cache: redis get %s: %v", key, err)
		return load(ctx)
	}
	if err == nil && fresh != "" {
		if b, err := c.R.Get(ctx, key).Bytes(); err == nil {
			var v T
			if err := json.Unmarshal(b, &v); err == nil {
				return v, nil
			}
			// Unparsable cached payload: fall through to the loader.
			log.Printf("cache: corrupt entry for %s, reloading", key)
		}
	}

	v, loadErr := load(ctx)
	if loadErr == nil {
		if b, err := json.Marshal(v); err == nil {
			_ = c.R.Set(ctx, key, b, c.staleFor()).Err()
			_ = c.R.Set(ctx, freshKey(key), "1", ttl).Err()
		}
		return v, nil
	}

	// Loader failed: previous value, if any, is better than nothing.
	if b, err := c.R.Get(ctx, key).Bytes(); err == nil {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, fmt.Errorf("%w: %v", ErrStale, loadErr)
		}
	}
	return zero, loadErr
}

// Invalidate marks keys stale. The cached values stay behind as fallbacks;
// only the freshness markers are dropped, so the next Get re-loads.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	marks := make([]string, 0, len(keys))
	for _, k := range keys {
		marks = append(marks, freshKey(k))
	}
	return c.R.Del(ctx, marks...).Err()
}
