package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
)

// WriteSnapshot encodes s as a zip archive and writes it to w.
// The snapshot is normalized first; a missing id or timestamp is filled in.
func WriteSnapshot(s *Snapshot, w io.Writer) error {
	s.Normalize()
	if s.Manifest.ID == "" {
		s.Manifest.ID = uuid.NewString()
	}
	if s.Manifest.CreatedAt.IsZero() {
		s.Manifest.CreatedAt = time.Now().UTC()
	}

	zw := zip.NewWriter(w)
	members := []struct {
		name string
		v    any
	}{
		{manifestFile, s.Manifest},
		{nodesFile, nonNil(s.Nodes)},
		{relationshipsFile, nonNil(s.Relationships)},
		{packDependenciesFile, nonNil(s.PackDependencies)},
	}
	for _, m := range members {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     m.name,
			Method:   zip.Deflate,
			Modified: s.Manifest.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", m.name, err)
		}
		enc := json.NewEncoder(fw)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m.v); err != nil {
			return fmt.Errorf("encode %s: %w", m.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

// ExportSnapshot writes s to path. The archive is written next to path and
// renamed into place, so a failed export never leaves a truncated file.
func ExportSnapshot(s *Snapshot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.zip")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteSnapshot(s, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

// nonNil makes empty record sets encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
