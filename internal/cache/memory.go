package cache

import (
	"context"
	"sync"
	"time"
)

type Clock func() time.Time

type memoryEntry struct {
	value     CachedUser
	expiresAt time.Time
}

// プロセス内のTTLキャッシュ（Redisがないとき用）
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     Clock
	entries map[int64]memoryEntry
}

func NewMemoryCache(ttl time.Duration, now Clock) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{ttl: ttl, now: now, entries: make(map[int64]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, userID int64) (CachedUser, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return CachedUser{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, userID)
		return CachedUser{}, false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, userID int64, u CachedUser) error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = memoryEntry{value: u, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}
