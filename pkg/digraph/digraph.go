package digraph

import (
	"errors"
	"slices"
	"strings"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [Graph.AddNode] when a node with the
	// same ID already exists in the graph.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by [Graph.AddEdge] when the From node
	// does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [Graph.AddEdge] when the To node
	// does not exist in the graph.
	ErrUnknownTargetNode = errors.New("unknown target node")
)

// Metadata stores arbitrary key-value pairs attached to nodes or edges.
// Metadata maps are never nil once added to a graph.
type Metadata map[string]any

// Node is a vertex of the graph.
type Node struct {
	ID   string   // Unique identifier
	Meta Metadata // Arbitrary key-value metadata (never nil after AddNode)
}

// Edge is a directed, labeled connection. Parallel edges with different
// labels or metadata are allowed.
type Edge struct {
	From  string   // Source node ID
	To    string   // Target node ID
	Label string   // Relationship label, e.g. "USES"
	Meta  Metadata // Arbitrary key-value metadata (never nil after AddEdge)
}

// Graph is a directed multigraph with constant-time adjacency lookups in both
// directions. Unlike a DAG it accepts cycles; use [Graph.Cycles] to find them.
//
// The zero value is not usable - use New to create a valid Graph instance.
// Graph is not safe for concurrent use without external synchronization.
type Graph struct {
	nodes    map[string]*Node
	edges    []Edge
	outgoing map[string][]int // nodeID -> indexes into edges
	incoming map[string][]int // nodeID -> indexes into edges
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]int),
		incoming: make(map[string][]int),
	}
}

// AddNode adds a node to the graph. Returns ErrInvalidNodeID if the node ID is
// empty, or ErrDuplicateNodeID if a node with the same ID already exists.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := g.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	if n.Meta == nil {
		n.Meta = Metadata{}
	}
	g.nodes[n.ID] = &n
	return nil
}

// EnsureNode returns the node with the given ID, adding it when missing.
func (g *Graph) EnsureNode(id string) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &Node{ID: id, Meta: Metadata{}}
	g.nodes[id] = n
	return n
}

// AddEdge adds a directed edge between two existing nodes.
// Returns ErrUnknownSourceNode if the From node doesn't exist, or
// ErrUnknownTargetNode if the To node doesn't exist.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := g.nodes[e.To]; !ok {
		return ErrUnknownTargetNode
	}
	if e.Meta == nil {
		e.Meta = Metadata{}
	}
	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.outgoing[e.From] = append(g.outgoing[e.From], idx)
	g.incoming[e.To] = append(g.incoming[e.To], idx)
	return nil
}

// Node returns the node with the given ID and true, or nil and false if not found.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes sorted by ID.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *Node) int { return strings.Compare(a.ID, b.ID) })
	return nodes
}

// Edges returns a copy of all edges in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Out returns the edges leaving id, in insertion order.
func (g *Graph) Out(id string) []Edge {
	return g.collect(g.outgoing[id])
}

// In returns the edges entering id, in insertion order.
func (g *Graph) In(id string) []Edge {
	return g.collect(g.incoming[id])
}

func (g *Graph) collect(idx []int) []Edge {
	if len(idx) == 0 {
		return nil
	}
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}

// Children returns the distinct IDs this node has edges to.
func (g *Graph) Children(id string) []string {
	return distinct(g.outgoing[id], func(e Edge) string { return e.To }, g.edges)
}

// Parents returns the distinct IDs that have edges to this node.
func (g *Graph) Parents(id string) []string {
	return distinct(g.incoming[id], func(e Edge) string { return e.From }, g.edges)
}

func distinct(idx []int, pick func(Edge) string, edges []Edge) []string {
	var out []string
	for _, i := range idx {
		id := pick(edges[i])
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// OutDegree returns the number of outgoing edges from the node.
func (g *Graph) OutDegree(id string) int { return len(g.outgoing[id]) }

// InDegree returns the number of incoming edges to the node.
func (g *Graph) InDegree(id string) int { return len(g.incoming[id]) }

// Sinks returns nodes with no outgoing edges, sorted by ID.
func (g *Graph) Sinks() []*Node {
	var sinks []*Node
	for _, n := range g.Nodes() {
		if len(g.outgoing[n.ID]) == 0 {
			sinks = append(sinks, n)
		}
	}
	return sinks
}

// Cycles returns every strongly connected component that contains a cycle,
// including single nodes with a self-loop. Components and their members are
// sorted by ID so the result is deterministic.
//
// Runs Tarjan's algorithm in O(N+E).
func (g *Graph) Cycles() [][]string {
	index := 0
	indices := make(map[string]int, len(g.nodes))
	lowlink := make(map[string]int, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var stack []string
	var cycles [][]string

	var strongConnect func(id string)
	strongConnect = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		for _, child := range g.Children(id) {
			if _, seen := indices[child]; !seen {
				strongConnect(child)
				lowlink[id] = min(lowlink[id], lowlink[child])
			} else if onStack[child] {
				lowlink[id] = min(lowlink[id], indices[child])
			}
		}

		if lowlink[id] != indices[id] {
			return
		}
		var comp []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			comp = append(comp, top)
			if top == id {
				break
			}
		}
		if len(comp) > 1 || slices.Contains(g.Children(id), id) {
			slices.Sort(comp)
			cycles = append(cycles, comp)
		}
	}

	for _, n := range g.Nodes() {
		if _, seen := indices[n.ID]; !seen {
			strongConnect(n.ID)
		}
	}
	slices.SortFunc(cycles, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return cycles
}

// BFS walks outgoing edges accepted by follow, starting from every ID in starts at
// distance 0, and returns the shortest distance to each reached node. Nodes farther
// than maxDepth are not visited; maxDepth <= 0 means unbounded.
func (g *Graph) BFS(starts []string, maxDepth int, follow func(Edge) bool) map[string]int {
	dist := make(map[string]int, len(starts))
	queue := make([]string, 0, len(starts))
	for _, s := range starts {
		if _, ok := dist[s]; ok {
			continue
		}
		dist[s] = 0
		queue = append(queue, s)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		d := dist[id]
		if maxDepth > 0 && d >= maxDepth {
			continue
		}
		for _, i := range g.outgoing[id] {
			e := g.edges[i]
			if follow != nil && !follow(e) {
				continue
			}
			if _, seen := dist[e.To]; seen {
				continue
			}
			dist[e.To] = d + 1
			queue = append(queue, e.To)
		}
	}
	return dist
}
