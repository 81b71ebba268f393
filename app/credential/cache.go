// Package credential provides process-local, time-bounded caches for
// upstream credentials such as bearer tokens and service PINs.
package credential

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads a credential from its source and reports how long the
// value may be cached.
type Fetcher func(ctx context.Context) (value string, ttl time.Duration, err error)

// Cache is a TTL cache keyed by credential name. Concurrent misses for the
// same key collapse into a single upstream fetch.
type Cache struct {
	store *gocache.Cache
	group singleflight.Group
}

func NewCache() *Cache {
	return &Cache{
		store: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

// Get returns the cached value for key, fetching it when absent or expired.
// A non-positive TTL from the fetcher means the value is used once and not
// cached.
func (c *Cache) Get(ctx context.Context, key string, fetch Fetcher) (string, error) {
	if value, ok := c.store.Get(key); ok {
		return value.(string), nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check: another caller may have filled the entry while this
		// one waited on the flight group.
		if value, ok := c.store.Get(key); ok {
			return value.(string), nil
		}

		value, ttl, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		if ttl > 0 {
			c.store.Set(key, value, ttl)
		}
		return value, nil
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

// Invalidate drops a cached credential, forcing the next Get to refetch.
func (c *Cache) Invalidate(key string) {
	c.store.Delete(key)
}
