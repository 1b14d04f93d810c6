// Package store defines the persistence boundary of the content graph.
//
// A [Store] keeps three record sets: content nodes keyed by node id, item-level
// relationships keyed by [content.Relationship.Key], and the derived pack
// dependency set. Relationships name their target by reference, so a store
// never checks targets; it only refuses relationships whose source node has
// not been committed ([ErrReferentialOrder]).
//
// Three implementations exist: [Memory] in this package, an embedded badger
// store in store/badger, and a neo4j store in store/neo4j. All of them are
// used through the graph package, which owns the acquire/release lifecycle.
package store

import (
	"context"
	"errors"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
)

// Sentinel errors shared by all implementations.
var (
	// ErrReferentialOrder is returned when a relationship is upserted before its
	// source node. It indicates a broken build batch and is fatal.
	ErrReferentialOrder = cgerrors.New(cgerrors.ErrCodeReferentialOrder, "relationship source node is not committed")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store: closed")
)

// Well-known metadata keys.
const (
	MetaCommit      = "commit"
	MetaMarketplace = "marketplace"
	MetaSnapshotID  = "snapshot_id"
	MetaUpdatedAt   = "updated_at"
)

// Store persists nodes, relationships and derived pack dependencies.
// Implementations must be safe for use by one command at a time; they are not
// required to support concurrent writers.
type Store interface {
	// UpsertNodes creates or replaces nodes by node id.
	UpsertNodes(ctx context.Context, nodes []content.Node) error

	// UpsertRelationships creates or replaces relationships by key. If any
	// source node is unknown, nothing is written and the error wraps
	// ErrReferentialOrder.
	UpsertRelationships(ctx context.Context, rels []content.Relationship) error

	// DeletePacks removes every node owned by the given packs, including the pack
	// nodes themselves, plus their outgoing relationships. It returns the number
	// of nodes removed.
	DeletePacks(ctx context.Context, packIDs []string) (int, error)

	// DeleteNodes removes nodes by id together with their outgoing relationships.
	DeleteNodes(ctx context.Context, nodeIDs []string) error

	// Nodes returns every node sorted by node id.
	Nodes(ctx context.Context) ([]content.Node, error)

	// Relationships returns every relationship sorted by key.
	Relationships(ctx context.Context) ([]content.Relationship, error)

	// ReplacePackDependencies swaps the derived dependency set. Readers observe
	// either the previous set or the new one, never a mix.
	ReplacePackDependencies(ctx context.Context, deps []content.PackDependency) error

	// PackDependencies returns the derived dependency set sorted by source and target.
	PackDependencies(ctx context.Context) ([]content.PackDependency, error)

	SetMeta(ctx context.Context, key, value string) error
	Meta(ctx context.Context, key string) (string, bool, error)

	// Clear removes all data.
	Clear(ctx context.Context) error

	Close() error
}

// MissingSources returns the distinct source ids of rels that are not in known,
// in first-seen order.
func MissingSources(rels []content.Relationship, known func(string) bool) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, r := range rels {
		if seen[r.SourceID] {
			continue
		}
		seen[r.SourceID] = true
		if !known(r.SourceID) {
			missing = append(missing, r.SourceID)
		}
	}
	return missing
}
