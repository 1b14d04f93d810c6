// Package deps computes pack-level dependencies from item-level edges.
//
// # Overview
//
// Content items reference each other through USES edges, and packs declare
// hand-authored DEPENDS_ON edges in their metadata. Packaging works on packs,
// so the graph needs a derived view: which packs does each pack need, how far
// away are they, and is the need mandatory?
//
// [Calculate] answers that with two breadth-first searches per pack over the
// item graph built by [ItemGraph]:
//
//   - min_depth is the shortest number of item-level hops from any item of the
//     source pack to any item of the target pack.
//   - mandatory is true when at least one path within the depth ceiling uses
//     mandatory edges only. A longer optional path never clears it.
//
// A USES edge to a command is redirected to the integrations that implement
// the command. When several packs provide it, none of them is mandatory.
//
// # Usage
//
//	res := deps.Calculate(nodes, rels, deps.Options{MaxDepth: 5})
//	for _, d := range res.ForPack("Phishing") {
//	    fmt.Println(d.Target, d.Mandatory, d.MinDepth)
//	}
//
// The result is a pure function of its input, so callers may drop and
// recompute it at any time.
package deps
