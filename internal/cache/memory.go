package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryCache is an in-process Cache for tests and single-process runs.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	counts  map[string]memoryCounter
	now     func() time.Time
}

type memoryCounter struct {
	n       int64
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		counts:  make(map[string]memoryCounter),
		now:     time.Now,
	}
}

func (c *MemoryCache) Ping(_ context.Context) error { return nil }

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	delete(c.counts, key)
	return nil
}

// IncrWithExpiry mirrors RedisCache: every increment pushes the expiry out.
func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	ctr := c.counts[key]
	if !ctr.expires.IsZero() && !now.Before(ctr.expires) {
		ctr = memoryCounter{}
	}
	ctr.n++
	ctr.expires = now.Add(expiry)
	c.counts[key] = ctr
	return ctr.n, nil
}

var _ Cache = (*MemoryCache)(nil)
