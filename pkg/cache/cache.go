// Package cache provides the byte cache used to keep downloaded graph
// snapshots between runs.
//
// Three backends exist: [FileCache] for CLI usage on a single machine,
// [RedisCache] for CI runners sharing one cache, and [NullCache] when caching
// is disabled. [Scoped] prefixes keys so several repositories or marketplaces
// can share one backend.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl <= 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Default lifetimes.
const (
	TTLSnapshot = 24 * time.Hour
	TTLManifest = time.Hour
)

// SnapshotKey identifies a remote snapshot archive. The etag (or any other
// revision marker) is hashed so a changed remote object never hits a stale
// entry.
func SnapshotKey(location, marketplace, etag string) string {
	return hashKey("snapshot", location, marketplace, etag)
}
