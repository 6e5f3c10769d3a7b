package repository

import (
	"context"
	"sync"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
)

// MemoryGrantsCache is the single-process grants cache. It owns its own
// lifecycle (set, expire, invalidate) and is safe for concurrent use.
type MemoryGrantsCache struct {
	mu      sync.RWMutex
	entries map[string]grantsEntry
	ttl     time.Duration
	now     func() time.Time
}

type grantsEntry struct {
	grants    *model.ActorGrants
	expiresAt time.Time
}

func NewMemoryGrantsCache(ttl time.Duration) *MemoryGrantsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryGrantsCache{
		entries: make(map[string]grantsEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryGrantsCache) Get(ctx context.Context, actorID string) (*model.ActorGrants, bool) {
	c.mu.RLock()
	entry, ok := c.entries[actorID]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	clone := *entry.grants
	return &clone, true
}

func (c *MemoryGrantsCache) Set(ctx context.Context, actorID string, grants *model.ActorGrants) {
	clone := *grants
	c.mu.Lock()
	c.entries[actorID] = grantsEntry{grants: &clone, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *MemoryGrantsCache) Invalidate(ctx context.Context, actorID string) {
	c.mu.Lock()
	delete(c.entries, actorID)
	c.mu.Unlock()
}

func (c *MemoryGrantsCache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]grantsEntry)
	c.mu.Unlock()
}
