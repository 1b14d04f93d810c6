package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matzehuels/contentgraph/pkg/content"
)

// DirStore keeps snapshots in a directory, typically a network mount or a CI
// cache directory.
type DirStore struct {
	dir    string
	prefix string
}

// NewDirStore returns a store rooted at dir.
func NewDirStore(dir, prefix string) *DirStore {
	return &DirStore{dir: dir, prefix: prefix}
}

func (s *DirStore) path(m content.Marketplace) string {
	return filepath.Join(s.dir, filepath.FromSlash(ObjectName(s.prefix, m)))
}

func (s *DirStore) Location() string { return filepath.Join(s.dir, s.prefix) }

func (s *DirStore) Download(_ context.Context, m content.Marketplace, dest string) error {
	f, err := os.Open(s.path(m))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, s.path(m))
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return writeAtomic(dest, f)
}

func (s *DirStore) Upload(_ context.Context, m content.Marketplace, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeAtomic(s.path(m), f)
}

// Revision combines size and modification time.
func (s *DirStore) Revision(_ context.Context, m content.Marketplace) (string, error) {
	info, err := os.Stat(s.path(m))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, s.path(m))
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano()), nil
}
