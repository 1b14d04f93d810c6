package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewRedisCache(context.Background(), RedisOptions{
		URL:            fmt.Sprintf("redis://%s", mr.Addr()),
		ConnectTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t)

	_, hit, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "snapshot:xsoar", []byte("zip bytes"), time.Hour))
	data, hit, err := c.Get(ctx, "snapshot:xsoar")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "zip bytes", string(data))
	assert.Equal(t, time.Hour, mr.TTL("snapshot:xsoar"))

	require.NoError(t, c.Delete(ctx, "snapshot:xsoar"))
	assert.False(t, mr.Exists("snapshot:xsoar"))
	require.NoError(t, c.Delete(ctx, "snapshot:xsoar"))
}

func TestRedisCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t)

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, hit, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCacheNoTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t)

	require.NoError(t, c.Set(ctx, "key", []byte("value"), 0))
	assert.Equal(t, time.Duration(0), mr.TTL("key"))
}

func TestRedisCacheConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(context.Background(), RedisOptions{
		URL:            fmt.Sprintf("redis://%s", addr),
		ConnectTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestRedisCacheBadURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), RedisOptions{URL: "not-a-url"})
	assert.Error(t, err)
}
