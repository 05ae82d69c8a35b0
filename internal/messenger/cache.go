package messenger

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ResolveFunc looks a channel up at the provider.
type ResolveFunc func(ctx context.Context, channel string) (Entity, error)

// EntityCache memoizes channel resolution for the process lifetime.
// The first successful result per channel wins; failures are not cached.
// Concurrent lookups of the same channel share one provider call.
type EntityCache struct {
	resolve ResolveFunc

	mu      sync.RWMutex
	entries map[string]Entity
	group   singleflight.Group
}

func NewEntityCache(resolve ResolveFunc) *EntityCache {
	return &EntityCache{resolve: resolve, entries: map[string]Entity{}}
}

func (c *EntityCache) Get(ctx context.Context, channel string) (Entity, error) {
	if e, ok := c.lookup(channel); ok {
		return e, nil
	}
	v, err, _ := c.group.Do(channel, func() (any, error) {
		if e, ok := c.lookup(channel); ok {
			return e, nil
		}
		e, err := c.resolve(ctx, channel)
		if err != nil {
			return nil, err
		}
		return c.insert(channel, e), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Entity), nil
}

func (c *EntityCache) lookup(channel string) (Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[channel]
	return e, ok
}

// insert stores e unless the channel is already cached, and returns the cached value.
func (c *EntityCache) insert(channel string, e Entity) Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[channel]; ok {
		return cur
	}
	c.entries[channel] = e
	return e
}

func (c *EntityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
