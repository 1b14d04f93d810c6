package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgio "github.com/matzehuels/contentgraph/pkg/io"
	"github.com/matzehuels/contentgraph/pkg/observability"
	"github.com/matzehuels/contentgraph/pkg/store"
)

// ImportDir returns the snapshot staging directory.
func (g *Graph) ImportDir() string { return g.importDir }

// CleanImportDir empties the staging directory. It must run before a new
// snapshot is staged so a stale archive is never picked up.
func (g *Graph) CleanImportDir() error {
	if err := os.RemoveAll(g.importDir); err != nil {
		return fmt.Errorf("clean import dir: %w", err)
	}
	return os.MkdirAll(g.importDir, 0755)
}

// MoveToImportDir cleans the staging directory and moves the archive at path
// into it, returning the staged path.
func (g *Graph) MoveToImportDir(path string) (string, error) {
	if err := g.CleanImportDir(); err != nil {
		return "", err
	}
	dest := filepath.Join(g.importDir, filepath.Base(path))
	if err := os.Rename(path, dest); err == nil {
		return dest, nil
	}
	// Rename fails across filesystems; fall back to copy and remove.
	if err := copyFile(path, dest); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	_ = os.Remove(path)
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// stagedSnapshot returns the archive in the import directory, if any.
func (g *Graph) stagedSnapshot() (string, bool) {
	matches, _ := filepath.Glob(filepath.Join(g.importDir, "*.zip"))
	if len(matches) == 0 {
		return "", false
	}
	slices.Sort(matches)
	return matches[0], true
}

// ImportGraph replaces the stored graph with the snapshot at path. An empty
// path imports the staged archive from the import directory.
//
// ImportGraph reports false, without returning an error, when the snapshot is
// missing, corrupt or incompatible, or when loading it fails. On false the
// store is left empty, never half loaded, and the caller is expected to fall
// back to a full build.
func (g *Graph) ImportGraph(ctx context.Context, path string) (ok bool) {
	start := time.Now()
	defer func() { observability.Graph().OnImport(ctx, ok, time.Since(start)) }()

	if path == "" {
		staged, found := g.stagedSnapshot()
		if !found {
			g.logger.Warn("no snapshot staged for import", "dir", g.importDir)
			return false
		}
		path = staged
	}

	snap, err := cgio.ImportSnapshot(path)
	if err != nil {
		switch {
		case errors.Is(err, cgio.ErrIncompatible):
			g.logger.Warn("snapshot schema is incompatible", "path", path, "err", err)
		case errors.Is(err, os.ErrNotExist):
			g.logger.Warn("snapshot not found", "path", path)
		default:
			g.logger.Warn("snapshot is unreadable", "path", path, "err", err)
		}
		return false
	}

	if err := g.load(ctx, snap); err != nil {
		g.logger.Error("failed to load snapshot", "path", path, "err", err)
		if cerr := g.store.Clear(ctx); cerr != nil {
			g.logger.Error("failed to clear store after import failure", "err", cerr)
		}
		return false
	}

	g.logger.Info("imported graph",
		"path", path,
		"nodes", len(snap.Nodes),
		"relationships", len(snap.Relationships),
		"commit", snap.Manifest.Commit)
	return true
}

func (g *Graph) load(ctx context.Context, snap *cgio.Snapshot) error {
	if err := g.store.Clear(ctx); err != nil {
		return err
	}
	if err := g.store.UpsertNodes(ctx, snap.Nodes); err != nil {
		return err
	}
	if err := g.store.UpsertRelationships(ctx, snap.Relationships); err != nil {
		return err
	}
	if err := g.store.ReplacePackDependencies(ctx, snap.PackDependencies); err != nil {
		return err
	}
	meta := map[string]string{
		store.MetaCommit:      snap.Manifest.Commit,
		store.MetaMarketplace: string(snap.Manifest.Marketplace),
		store.MetaSnapshotID:  snap.Manifest.ID,
		store.MetaUpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if err := g.store.SetMeta(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot copies the stored graph, restricted to marketplace m when set.
func (g *Graph) Snapshot(ctx context.Context, m content.Marketplace) (*cgio.Snapshot, error) {
	nodes, rels, err := g.read(ctx)
	if err != nil {
		return nil, err
	}
	deps, err := g.store.PackDependencies(ctx)
	if err != nil {
		return nil, storeError(err, "read pack dependencies")
	}
	commit, err := g.CommitHash(ctx)
	if err != nil {
		return nil, err
	}
	snap := &cgio.Snapshot{
		Manifest:         cgio.Manifest{Marketplace: m, Commit: commit},
		Nodes:            nodes,
		Relationships:    rels,
		PackDependencies: deps,
	}
	return snap.Filter(m), nil
}

// ExportGraph writes the stored graph, restricted to marketplace m when set,
// as a snapshot archive at path.
func (g *Graph) ExportGraph(ctx context.Context, path string, m content.Marketplace) (err error) {
	start := time.Now()
	defer func() { observability.Graph().OnExport(ctx, string(m), time.Since(start), err) }()

	snap, err := g.Snapshot(ctx, m)
	if err != nil {
		return err
	}
	if err := cgio.ExportSnapshot(snap, path); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	g.logger.Info("exported graph",
		"path", path,
		"marketplace", m,
		"nodes", snap.Manifest.Stats.Nodes,
		"relationships", snap.Manifest.Stats.Relationships)
	return nil
}
