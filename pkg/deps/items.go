package deps

import (
	"slices"

	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/digraph"
)

// GraphOptions selects which content and edges enter an item graph.
type GraphOptions struct {
	// Types lists the relationship types to include. Empty means all.
	Types []content.RelationshipType

	// IncludeTests keeps test playbooks and test scripts.
	IncludeTests bool

	// Marketplace drops content not shipping there. Empty keeps everything.
	Marketplace content.Marketplace

	// ResolveCommands replaces a USES edge to a command by edges to the
	// integrations providing it. Such an edge stays mandatory only when every
	// provider lives in one pack.
	ResolveCommands bool
}

// Eligible reports whether a node takes part in a graph built with opts.
func (o GraphOptions) Eligible(n *content.Node) bool {
	if !n.InMarketplace(o.Marketplace) {
		return false
	}
	if !o.IncludeTests && (n.IsTest || n.ContentType == content.TestPlaybook) {
		return false
	}
	return true
}

// ItemGraph resolves relationships into a graph over node ids. Each node
// carries its pack under MetaPack; each edge is labelled with its relationship
// type and carries MetaMandatory. Parallel edges between the same endpoints are
// merged, ORing the mandatory flag. Unresolvable targets are left out.
func ItemGraph(nodes []content.Node, rels []content.Relationship, opts GraphOptions) *digraph.Graph {
	idx := content.NewIndex(nodes)
	g := digraph.New()
	for i := range nodes {
		n := &nodes[i]
		if !opts.Eligible(n) {
			continue
		}
		_ = g.AddNode(digraph.Node{ID: n.NodeID, Meta: digraph.Metadata{MetaPack: n.PackID}})
	}

	providers := make(map[string][]*content.Node)
	if opts.ResolveCommands {
		for _, r := range rels {
			if r.Type != content.HasCommand {
				continue
			}
			if src, ok := idx.Node(r.SourceID); ok && opts.Eligible(src) {
				providers[r.Target.ObjectID] = append(providers[r.Target.ObjectID], src)
			}
		}
	}

	type key struct{ from, to, label string }
	merged := make(map[key]int)
	var edges []digraph.Edge

	for _, r := range rels {
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, r.Type) {
			continue
		}
		if _, ok := g.Node(r.SourceID); !ok {
			continue
		}

		var targets []*content.Node
		for _, t := range idx.Resolve(r.Target) {
			if opts.ResolveCommands && t.ContentType == content.Command {
				targets = append(targets, providers[t.ObjectID]...)
				continue
			}
			if opts.Eligible(t) {
				targets = append(targets, t)
			}
		}
		if len(targets) == 0 {
			continue
		}

		mandatory := r.Mandatory
		if mandatory && opts.ResolveCommands && len(distinctPacks(targets)) > 1 {
			mandatory = false
		}
		for _, t := range targets {
			k := key{r.SourceID, t.NodeID, string(r.Type)}
			if i, ok := merged[k]; ok {
				edges[i].Meta[MetaMandatory] = IsMandatory(edges[i]) || mandatory
				continue
			}
			merged[k] = len(edges)
			edges = append(edges, digraph.Edge{
				From:  r.SourceID,
				To:    t.NodeID,
				Label: string(r.Type),
				Meta:  digraph.Metadata{MetaMandatory: mandatory, "direct": r.IsDirect},
			})
		}
	}

	for _, e := range edges {
		_ = g.AddEdge(e)
	}
	return g
}

func distinctPacks(nodes []*content.Node) []string {
	var packs []string
	for _, n := range nodes {
		if !slices.Contains(packs, n.PackID) {
			packs = append(packs, n.PackID)
		}
	}
	return packs
}
