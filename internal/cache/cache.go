// Package cache is a read-through Redis cache for public event snapshots.
// Counters inside a cached snapshot may lag by up to the TTL; every
// authoritative decision re-reads the store, so the cache only serves the
// public browse endpoints.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meetflow/meetflow/internal/model"
)

const keyPrefix = "event:"

// EventCache caches event snapshots with a short TTL. All methods are
// best-effort and safe on a nil receiver, so wiring Redis is optional.
type EventCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs an EventCache.
func New(client *redis.Client, ttl time.Duration) *EventCache {
	return &EventCache{client: client, ttl: ttl}
}

// Get returns the cached snapshot, or ok=false on miss or any Redis error.
func (c *EventCache) Get(ctx context.Context, id string) (*model.Event, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, keyPrefix+id).Result()
	if err != nil {
		return nil, false
	}
	var e model.Event
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, false
	}
	return &e, true
}

// Set stores the snapshot, ignoring failures.
func (c *EventCache) Set(ctx context.Context, e *model.Event) {
	if c == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, keyPrefix+e.ID, data, c.ttl).Err()
}

// Invalidate drops the snapshot after an organizer mutation.
func (c *EventCache) Invalidate(ctx context.Context, id string) {
	if c == nil {
		return
	}
	_ = c.client.Del(ctx, keyPrefix+id).Err()
}
