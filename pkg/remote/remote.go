// Package remote moves snapshot archives between the local machine and shared
// storage.
//
// Archives are addressed by marketplace: the snapshot for "xsoar" lives at
// <prefix>/xsoar.zip in every backend. [GCSStore] talks to a Cloud Storage
// bucket, [HTTPStore] to any server answering GET and PUT, and [DirStore] to a
// local or mounted directory. [Cached] keeps downloads in a [cache.Cache],
// keyed by the object's revision.
//
// Downloads are atomic: the archive is written next to dest and renamed into
// place, so a failed transfer never leaves a partial file where an importer
// would pick it up.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgio "github.com/matzehuels/contentgraph/pkg/io"
)

// ErrNotFound is returned when no snapshot exists for a marketplace.
var ErrNotFound = errors.New("remote snapshot not found")

// Store is a remote artifact store for snapshot archives.
type Store interface {
	// Download writes the archive for m to dest.
	Download(ctx context.Context, m content.Marketplace, dest string) error

	// Upload publishes the archive at src as the snapshot for m.
	Upload(ctx context.Context, m content.Marketplace, src string) error

	// Revision returns an opaque marker that changes whenever the archive
	// for m changes.
	Revision(ctx context.Context, m content.Marketplace) (string, error)

	// Location describes the store for logs and cache keys.
	Location() string
}

// ObjectName returns the archive name for m below prefix.
func ObjectName(prefix string, m content.Marketplace) string {
	return path.Join(prefix, cgio.FileName(m))
}

// writeAtomic streams r to a temp file beside dest and renames it into place.
func writeAtomic(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
