package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/logger"
)

const grantsKeyPrefix = "grants:"

// RedisGrantsCache shares resolved permission sets across instances. Entries
// expire after the configured TTL; invalidation deletes eagerly so a reader
// never observes pre-invalidation data once Invalidate returns.
type RedisGrantsCache struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisGrantsCache(client *RedisClient, ttl time.Duration) *RedisGrantsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisGrantsCache{client: client, ttl: ttl}
}

func (c *RedisGrantsCache) Get(ctx context.Context, actorID string) (*model.ActorGrants, bool) {
	raw, err := c.client.Client.Get(ctx, grantsKeyPrefix+actorID).Bytes()
	if err != nil {
		return nil, false
	}
	var grants model.ActorGrants
	if err := json.Unmarshal(raw, &grants); err != nil {
		return nil, false
	}
	return &grants, true
}

func (c *RedisGrantsCache) Set(ctx context.Context, actorID string, grants *model.ActorGrants) {
	payload, err := json.Marshal(grants)
	if err != nil {
		return
	}
	if err := c.client.Client.Set(ctx, grantsKeyPrefix+actorID, payload, c.ttl).Err(); err != nil {
		logger.Warn("failed to cache actor grants", "actor_id", actorID, "error", err.Error())
	}
}

func (c *RedisGrantsCache) Invalidate(ctx context.Context, actorID string) {
	if err := c.client.Client.Del(ctx, grantsKeyPrefix+actorID).Err(); err != nil {
		logger.Warn("failed to invalidate actor grants", "actor_id", actorID, "error", err.Error())
	}
}

// InvalidateAll removes every cached grant set. Used for role- or
// permission-level mutations where the affected actor set is unknown.
func (c *RedisGrantsCache) InvalidateAll(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := c.client.Client.Scan(ctx, cursor, grantsKeyPrefix+"*", 500).Result()
		if err != nil {
			logger.Warn("failed to scan grants cache", "error", err.Error())
			return
		}
		if len(keys) > 0 {
			_ = c.client.Client.Del(ctx, keys...).Err()
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
