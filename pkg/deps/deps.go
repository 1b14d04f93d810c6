package deps

import (
	"slices"

	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/digraph"
)

const (
	DefaultMaxDepth = 5 // Default ceiling on item-level hops between two packs
)

// Edge metadata keys set by ItemGraph.
const (
	MetaMandatory = "mandatory"
	MetaPack      = "pack"
)

// Options configures pack dependency calculation.
type Options struct {
	MaxDepth     int                 // Maximum item-level hops (default: 5)
	IncludeTests bool                // Follow test content and TESTED_BY edges
	Marketplace  content.Marketplace // Restrict to content shipping here; empty means all
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return opts
}

// Result holds the derived pack dependency set.
type Result struct {
	Dependencies []content.PackDependency

	// Cycles lists strongly connected groups of packs. Cycles are legal but
	// worth reporting, since they force packs to ship together.
	Cycles [][]string
}

// ForPack returns the dependencies whose source is packID.
func (r *Result) ForPack(packID string) []content.PackDependency {
	var out []content.PackDependency
	for _, d := range r.Dependencies {
		if d.Source == packID {
			out = append(out, d)
		}
	}
	return out
}

// Calculate derives pack-to-pack dependencies from item-level edges.
//
// For every pack P it runs a breadth-first search from all of P's items over
// USES and DEPENDS_ON edges, up to MaxDepth hops. The first hop count at which
// an item of another pack Q is reached is min_depth(P, Q). A second search
// restricted to mandatory edges decides the mandatory flag: it is true when any
// path of at most MaxDepth hops consists of mandatory edges only. Self
// dependencies are dropped.
func Calculate(nodes []content.Node, rels []content.Relationship, opts Options) *Result {
	opts = opts.WithDefaults()

	follow := []content.RelationshipType{content.Uses, content.DependsOn}
	if opts.IncludeTests {
		follow = append(follow, content.TestedBy)
	}
	g := ItemGraph(nodes, rels, GraphOptions{
		Types:           follow,
		IncludeTests:    opts.IncludeTests,
		Marketplace:     opts.Marketplace,
		ResolveCommands: true,
	})

	members := make(map[string][]string)
	for _, n := range g.Nodes() {
		if pack := packOf(n); pack != "" {
			members[pack] = append(members[pack], n.ID)
		}
	}
	packs := make([]string, 0, len(members))
	for p := range members {
		packs = append(packs, p)
	}
	slices.Sort(packs)

	mandatoryOnly := func(e digraph.Edge) bool { return IsMandatory(e) }

	result := &Result{}
	for _, p := range packs {
		all := g.BFS(members[p], opts.MaxDepth, nil)
		mandatory := g.BFS(members[p], opts.MaxDepth, mandatoryOnly)

		depth := make(map[string]int)
		for id, d := range all {
			q := packOfID(g, id)
			if q == "" || q == p {
				continue
			}
			if cur, ok := depth[q]; !ok || d < cur {
				depth[q] = d
			}
		}
		required := make(map[string]bool)
		for id := range mandatory {
			if q := packOfID(g, id); q != "" && q != p {
				required[q] = true
			}
		}
		for q, d := range depth {
			result.Dependencies = append(result.Dependencies, content.PackDependency{
				Source:    p,
				Target:    q,
				Mandatory: required[q],
				MinDepth:  d,
			})
		}
	}
	content.SortPackDependencies(result.Dependencies)
	result.Cycles = PackGraph(result.Dependencies).Cycles()
	return result
}

// PackGraph builds a pack-level graph from derived dependencies.
func PackGraph(deps []content.PackDependency) *digraph.Graph {
	g := digraph.New()
	for _, d := range deps {
		g.EnsureNode(d.Source)
		g.EnsureNode(d.Target)
		_ = g.AddEdge(digraph.Edge{
			From:  d.Source,
			To:    d.Target,
			Label: string(content.DependsOn),
			Meta:  digraph.Metadata{MetaMandatory: d.Mandatory, "min_depth": d.MinDepth},
		})
	}
	return g
}

// IsMandatory reports whether an item graph edge is mandatory.
func IsMandatory(e digraph.Edge) bool {
	m, _ := e.Meta[MetaMandatory].(bool)
	return m
}

func packOf(n *digraph.Node) string {
	p, _ := n.Meta[MetaPack].(string)
	return p
}

func packOfID(g *digraph.Graph, id string) string {
	n, ok := g.Node(id)
	if !ok {
		return ""
	}
	return packOf(n)
}
