package io

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/matzehuels/contentgraph/pkg/content"
)

// MergeSnapshots combines a locally built snapshot with a remote one.
//
// Local content wins at pack granularity: every pack present in local replaces
// the remote copy of that pack entirely, so an item deleted locally does not
// resurface from the remote. Remote nodes without a pack (commands) are kept
// unless local has the same node id. Remote relationships survive only when
// their source survives and is not a local node. Pack dependencies are
// dropped; they are derived and must be recomputed over the merged graph.
//
// Neither input is modified and the result is sorted.
func MergeSnapshots(local, remote *Snapshot) (*Snapshot, error) {
	lm, rm := local.Manifest.Marketplace, remote.Manifest.Marketplace
	if lm != "" && rm != "" && lm != rm {
		return nil, fmt.Errorf("%w: %s and %s", ErrMarketplaceMismatch, lm, rm)
	}

	localPacks := make(map[string]bool)
	localIDs := make(map[string]bool, len(local.Nodes))
	for _, n := range local.Nodes {
		localIDs[n.NodeID] = true
		if n.PackID != "" {
			localPacks[n.PackID] = true
		}
	}

	out := &Snapshot{Manifest: Manifest{
		ID:          uuid.NewString(),
		Marketplace: lm,
		Commit:      local.Manifest.Commit,
	}}
	if out.Manifest.Marketplace == "" {
		out.Manifest.Marketplace = rm
	}

	kept := make(map[string]bool, len(local.Nodes)+len(remote.Nodes))
	for _, n := range local.Nodes {
		out.Nodes = append(out.Nodes, n.Clone())
		kept[n.NodeID] = true
	}
	for _, n := range remote.Nodes {
		if localIDs[n.NodeID] || (n.PackID != "" && localPacks[n.PackID]) {
			continue
		}
		out.Nodes = append(out.Nodes, n.Clone())
		kept[n.NodeID] = true
	}

	out.Relationships = append(out.Relationships, local.Relationships...)
	for _, r := range remote.Relationships {
		if localIDs[r.SourceID] || !kept[r.SourceID] {
			continue
		}
		out.Relationships = append(out.Relationships, r)
	}
	out.Relationships = content.DedupeRelationships(out.Relationships)

	out.Normalize()
	return out, nil
}

// MergeFiles merges the snapshot archives at localPath and remotePath into
// outPath. The output is written atomically; on any error outPath is untouched.
func MergeFiles(localPath, remotePath, outPath string) error {
	local, err := ImportSnapshot(localPath)
	if err != nil {
		return fmt.Errorf("read local snapshot: %w", err)
	}
	remote, err := ImportSnapshot(remotePath)
	if err != nil {
		return fmt.Errorf("read remote snapshot: %w", err)
	}
	merged, err := MergeSnapshots(local, remote)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}
	return ExportSnapshot(merged, outPath)
}
