package io

import (
	"errors"
	"time"

	"github.com/matzehuels/contentgraph/pkg/content"
)

// SchemaVersion is bumped whenever the snapshot layout changes incompatibly.
const SchemaVersion = 1

// Archive member names.
const (
	manifestFile         = "manifest.json"
	nodesFile            = "nodes.json"
	relationshipsFile    = "relationships.json"
	packDependenciesFile = "pack_dependencies.json"
)

var (
	// ErrCorrupt means the archive could not be read or a member is malformed.
	ErrCorrupt = errors.New("snapshot is corrupt")

	// ErrIncompatible means the archive was written with another schema version.
	ErrIncompatible = errors.New("snapshot schema is incompatible")

	// ErrMarketplaceMismatch means two snapshots for different marketplaces were merged.
	ErrMarketplaceMismatch = errors.New("snapshots target different marketplaces")
)

// Manifest describes a snapshot.
type Manifest struct {
	SchemaVersion int                 `json:"schema_version"`
	ID            string              `json:"id"`
	Marketplace   content.Marketplace `json:"marketplace,omitempty"`
	Commit        string              `json:"commit,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	Stats         Stats               `json:"stats"`
}

// Stats counts snapshot records.
type Stats struct {
	Nodes            int `json:"nodes"`
	Relationships    int `json:"relationships"`
	PackDependencies int `json:"pack_dependencies"`
}

// Snapshot is a complete, serializable copy of a graph.
type Snapshot struct {
	Manifest         Manifest
	Nodes            []content.Node
	Relationships    []content.Relationship
	PackDependencies []content.PackDependency
}

// Normalize sorts all records and refreshes the manifest counts.
func (s *Snapshot) Normalize() {
	content.SortNodes(s.Nodes)
	content.SortRelationships(s.Relationships)
	content.SortPackDependencies(s.PackDependencies)
	s.Manifest.SchemaVersion = SchemaVersion
	s.Manifest.Stats = Stats{
		Nodes:            len(s.Nodes),
		Relationships:    len(s.Relationships),
		PackDependencies: len(s.PackDependencies),
	}
}

// Filter returns a copy restricted to content shipping to m. Relationships
// keep only kept sources and dependencies only kept packs. An empty
// marketplace returns an unfiltered copy.
func (s *Snapshot) Filter(m content.Marketplace) *Snapshot {
	out := &Snapshot{Manifest: s.Manifest}
	if m != "" {
		out.Manifest.Marketplace = m
	}
	kept := make(map[string]bool, len(s.Nodes))
	packs := make(map[string]bool)
	for _, n := range s.Nodes {
		if !n.InMarketplace(m) {
			continue
		}
		kept[n.NodeID] = true
		if n.ContentType == content.Pack {
			packs[n.ObjectID] = true
		}
		out.Nodes = append(out.Nodes, n)
	}
	for _, r := range s.Relationships {
		if kept[r.SourceID] {
			out.Relationships = append(out.Relationships, r)
		}
	}
	for _, d := range s.PackDependencies {
		if packs[d.Source] && packs[d.Target] {
			out.PackDependencies = append(out.PackDependencies, d)
		}
	}
	out.Normalize()
	return out
}

// FileName returns the deterministic archive name for a marketplace.
func FileName(m content.Marketplace) string {
	if m == "" {
		return "all.zip"
	}
	return string(m) + ".zip"
}
