package cache

import (
	"context"
	"time"
)

// ScopedCache prefixes every key of an inner cache. It gives each repository
// its own namespace in a shared backend:
//
//	shared, _ := NewRedisCache(ctx, RedisOptions{URL: "redis://ci-cache:6379"})
//	c := Scoped(shared, "content:")
type ScopedCache struct {
	inner  Cache
	prefix string
}

// Scoped wraps inner with a key prefix. A nil inner yields a NullCache.
func Scoped(inner Cache, prefix string) Cache {
	if inner == nil {
		inner = NewNullCache()
	}
	return &ScopedCache{inner: inner, prefix: prefix}
}

// Get reads the prefixed key.
func (c *ScopedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.inner.Get(ctx, c.prefix+key)
}

// Set writes the prefixed key.
func (c *ScopedCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.inner.Set(ctx, c.prefix+key, data, ttl)
}

// Delete removes the prefixed key.
func (c *ScopedCache) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, c.prefix+key)
}

// Close closes the inner cache.
func (c *ScopedCache) Close() error {
	return c.inner.Close()
}

var _ Cache = (*ScopedCache)(nil)
