// Package digraph provides an in-memory directed multigraph used as the
// adjacency index for content graph queries.
//
// # Overview
//
// The content graph store holds nodes and declared relationships; traversals
// (pack dependency closure, relationship path queries, cycle reports) run
// against a [Graph] built from a snapshot of the store. Edges carry a label
// (the relationship type) and free-form metadata such as the mandatory flag.
//
// # Basic Usage
//
//	g := digraph.New()
//	g.AddNode(digraph.Node{ID: "Pack:Phishing"})
//	g.AddNode(digraph.Node{ID: "Pack:Core"})
//	g.AddEdge(digraph.Edge{From: "Pack:Phishing", To: "Pack:Core", Label: "DEPENDS_ON"})
//
//	dist := g.BFS([]string{"Pack:Phishing"}, 3, nil)
//
// Cycles are legal; [Graph.Cycles] reports strongly connected components
// that contain at least one cycle.
package digraph
