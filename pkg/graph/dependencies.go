package graph

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/deps"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	"github.com/matzehuels/contentgraph/pkg/observability"
)

// DependencyOptions configures CreatePackDependencies.
type DependencyOptions = deps.Options

// FilterOptions narrows a pack dependency lookup.
type FilterOptions struct {
	// AllLevels includes transitive dependencies. Otherwise only packs
	// reached in one item-level hop are returned.
	AllLevels bool

	// MandatoryOnly drops optional dependencies.
	MandatoryOnly bool
}

// DanglingReference is a USES or DEPENDS_ON edge whose target matches no node.
type DanglingReference struct {
	SourceID   string                   `json:"source_id"`
	SourcePath string                   `json:"source_path,omitempty"`
	SourcePack string                   `json:"source_pack,omitempty"`
	Type       content.RelationshipType `json:"relationship_type"`
	Target     content.Ref              `json:"target"`
	Mandatory  bool                     `json:"mandatorily"`
}

// CreatePackDependencies recomputes the derived pack dependency set from the
// stored relationships and swaps it in atomically. Cycles and dangling
// mandatory references are logged as warnings; neither blocks the update.
func (g *Graph) CreatePackDependencies(ctx context.Context, opts DependencyOptions) (*deps.Result, error) {
	start := time.Now()
	nodes, rels, err := g.read(ctx)
	if err != nil {
		return nil, err
	}

	result := deps.Calculate(nodes, rels, opts)
	if err := g.store.ReplacePackDependencies(ctx, result.Dependencies); err != nil {
		return nil, storeError(err, "replace pack dependencies")
	}
	observability.Graph().OnDependencies(ctx, len(result.Dependencies), len(result.Cycles), time.Since(start))

	for _, c := range result.Cycles {
		g.logger.Warn("pack dependency cycle", "packs", strings.Join(c, " -> "))
	}
	dangling := danglingReferences(nodes, rels, opts.Marketplace)
	mandatory := 0
	for _, d := range dangling {
		if d.Mandatory {
			mandatory++
			g.logger.Warn("unresolved mandatory reference", "source", d.SourceID, "target", d.Target.String())
		}
	}
	g.logger.Info("created pack dependencies",
		"dependencies", len(result.Dependencies),
		"cycles", len(result.Cycles),
		"dangling", mandatory,
		"duration", time.Since(start))
	return result, nil
}

// PackDependencies returns the stored dependencies of packID.
func (g *Graph) PackDependencies(ctx context.Context, packID string, opts FilterOptions) ([]content.PackDependency, error) {
	if err := cgerrors.ValidatePackID(packID); err != nil {
		return nil, err
	}
	nodes, err := g.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(nodes, func(n content.Node) bool { return n.NodeID == content.PackNodeID(packID) }) {
		return nil, cgerrors.New(cgerrors.ErrCodePackNotFound, "pack %q is not in the graph", packID)
	}

	all, err := g.store.PackDependencies(ctx)
	if err != nil {
		return nil, storeError(err, "read pack dependencies")
	}
	var out []content.PackDependency
	for _, d := range all {
		if d.Source != packID {
			continue
		}
		if !opts.AllLevels && d.MinDepth > 1 {
			continue
		}
		if opts.MandatoryOnly && !d.Mandatory {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// DanglingReferences lists USES and DEPENDS_ON edges of content shipping to
// marketplace m whose target resolves to no node shipping there. An empty
// marketplace considers all content.
func (g *Graph) DanglingReferences(ctx context.Context, m content.Marketplace) ([]DanglingReference, error) {
	nodes, rels, err := g.read(ctx)
	if err != nil {
		return nil, err
	}
	return danglingReferences(nodes, rels, m), nil
}

func danglingReferences(nodes []content.Node, rels []content.Relationship, m content.Marketplace) []DanglingReference {
	idx := content.NewIndex(nodes)
	var out []DanglingReference
	for _, r := range rels {
		if r.Type != content.Uses && r.Type != content.DependsOn {
			continue
		}
		src, ok := idx.Node(r.SourceID)
		if !ok || !src.InMarketplace(m) {
			continue
		}
		resolved := slices.ContainsFunc(idx.Resolve(r.Target), func(n *content.Node) bool {
			return n.InMarketplace(m)
		})
		if resolved {
			continue
		}
		out = append(out, DanglingReference{
			SourceID:   r.SourceID,
			SourcePath: src.FilePath,
			SourcePack: src.PackID,
			Type:       r.Type,
			Target:     r.Target,
			Mandatory:  r.Mandatory,
		})
	}
	slices.SortFunc(out, func(a, b DanglingReference) int {
		if c := strings.Compare(a.SourceID, b.SourceID); c != 0 {
			return c
		}
		return strings.Compare(a.Target.String(), b.Target.String())
	})
	return out
}
