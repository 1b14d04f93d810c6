package remote

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/contentgraph/pkg/cache"
	"github.com/matzehuels/contentgraph/pkg/content"
)

// Cached serves downloads from a cache when the remote revision is unchanged.
type Cached struct {
	Store
	cache  cache.Cache
	ttl    time.Duration
	logger *log.Logger
}

// NewCached wraps s. A ttl <= 0 uses cache.TTLSnapshot.
func NewCached(s Store, c cache.Cache, ttl time.Duration, logger *log.Logger) *Cached {
	if ttl <= 0 {
		ttl = cache.TTLSnapshot
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Cached{Store: s, cache: c, ttl: ttl, logger: logger}
}

// Download asks the remote for the current revision and copies a cached
// archive of that revision to dest. Otherwise it downloads and caches.
// Cache failures only cost the cache; they never fail the download.
func (c *Cached) Download(ctx context.Context, m content.Marketplace, dest string) error {
	rev, err := c.Store.Revision(ctx, m)
	if err != nil {
		return err
	}
	key := cache.SnapshotKey(c.Store.Location(), string(m), rev)

	data, hit, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("snapshot cache read failed", "err", err)
	}
	if hit {
		c.logger.Debug("snapshot served from cache", "marketplace", m, "revision", rev)
		return writeAtomic(dest, bytes.NewReader(data))
	}

	if err := c.Store.Download(ctx, m, dest); err != nil {
		return err
	}
	data, err = os.ReadFile(dest)
	if err != nil {
		return err
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("snapshot cache write failed", "err", err)
	}
	return nil
}
