package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
)

// ReadSnapshot decodes a snapshot archive.
//
// ReadSnapshot returns an error wrapping ErrCorrupt if the archive cannot be
// opened, a member is missing or malformed, or the manifest counts disagree
// with the records. It returns an error wrapping ErrIncompatible if the
// schema version differs from SchemaVersion. Callers that only need a
// yes/no answer treat both the same.
func ReadSnapshot(r io.ReaderAt, size int64) (*Snapshot, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var s Snapshot
	if err := decodeMember(zr, manifestFile, &s.Manifest); err != nil {
		return nil, err
	}
	if s.Manifest.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrIncompatible, s.Manifest.SchemaVersion, SchemaVersion)
	}
	if err := decodeMember(zr, nodesFile, &s.Nodes); err != nil {
		return nil, err
	}
	if err := decodeMember(zr, relationshipsFile, &s.Relationships); err != nil {
		return nil, err
	}
	if err := decodeMember(zr, packDependenciesFile, &s.PackDependencies); err != nil {
		return nil, err
	}

	st := s.Manifest.Stats
	if st.Nodes != len(s.Nodes) || st.Relationships != len(s.Relationships) || st.PackDependencies != len(s.PackDependencies) {
		return nil, fmt.Errorf("%w: manifest counts do not match records", ErrCorrupt)
	}
	for _, n := range s.Nodes {
		if n.NodeID == "" || !n.ContentType.IsValid() {
			return nil, fmt.Errorf("%w: invalid node %q", ErrCorrupt, n.NodeID)
		}
	}
	return &s, nil
}

// ImportSnapshot reads the snapshot archive at path.
func ImportSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return ReadSnapshot(f, info.Size())
}

func decodeMember(zr *zip.Reader, name string, v any) error {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", ErrCorrupt, name, err)
		}
		defer rc.Close()
		if err := json.NewDecoder(rc).Decode(v); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrCorrupt, name, err)
		}
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrCorrupt, name)
}
