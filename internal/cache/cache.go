package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/filmclub/cinema-service/internal/storage"
	"github.com/filmclub/cinema-service/internal/types"
)

// Service puts a short-TTL Redis cache in front of the store's hot read
// paths. Built with a nil Redis client it degrades to a pass-through, so
// deployments without Redis keep working.
type Service struct {
	store *storage.Store
	redis *redis.Client
}

func NewService(store *storage.Store, redisClient *redis.Client) *Service {
	return &Service{store: store, redis: redisClient}
}

// Cache keys and durations. The current-event selection is phase-sensitive
// so its TTL stays short.
const (
	CurrentEventKey = "cinema:current"
	GalleryKey      = "gallery:items"

	CurrentEventTTL = 15 * time.Second
	GalleryTTL      = 45 * time.Second
)

// CurrentEvent returns the cached current-event selection or falls through
// to the store.
func (c *Service) CurrentEvent(ctx context.Context, now time.Time) (types.Event, bool) {
	if c.redis == nil {
		return c.store.CurrentEvent(now)
	}

	cached, err := c.redis.Get(ctx, CurrentEventKey).Result()
	if err == nil {
		var ev types.Event
		if err := json.Unmarshal([]byte(cached), &ev); err == nil {
			return ev, true
		}
	}

	ev, ok := c.store.CurrentEvent(now)
	if !ok {
		return types.Event{}, false
	}

	if data, err := json.Marshal(ev); err == nil {
		c.redis.Set(ctx, CurrentEventKey, data, CurrentEventTTL)
	}
	return ev, true
}

// GalleryItems returns the cached gallery listing or falls through to the
// store.
func (c *Service) GalleryItems(ctx context.Context) []storage.ItemView {
	if c.redis == nil {
		return c.store.GalleryItems()
	}

	cached, err := c.redis.Get(ctx, GalleryKey).Result()
	if err == nil {
		var items []storage.ItemView
		if err := json.Unmarshal([]byte(cached), &items); err == nil {
			return items
		}
	}

	items := c.store.GalleryItems()
	if data, err := json.Marshal(items); err == nil {
		c.redis.Set(ctx, GalleryKey, data, GalleryTTL)
	}
	return items
}

// InvalidateCinema clears the current-event cache after event creation or
// removal.
func (c *Service) InvalidateCinema(ctx context.Context) {
	if c.redis != nil {
		c.redis.Del(ctx, CurrentEventKey)
	}
}

// InvalidateGallery clears the gallery cache after a write.
func (c *Service) InvalidateGallery(ctx context.Context) {
	if c.redis != nil {
		c.redis.Del(ctx, GalleryKey)
	}
}
