package digraph

import (
	"errors"
	"slices"
	"testing"
)

func build(t *testing.T, ids []string, edges [][2]string) *Graph {
	t.Helper()
	g := New()
	for _, id := range ids {
		if err := g.AddNode(Node{ID: id}); err != nil {
			t.Fatalf("AddNode(%s): %v", id, err)
		}
	}
	for _, e := range edges {
		if err := g.AddEdge(Edge{From: e[0], To: e[1], Label: "USES"}); err != nil {
			t.Fatalf("AddEdge(%v): %v", e, err)
		}
	}
	return g
}

func TestAddNodeErrors(t *testing.T) {
	g := New()
	if err := g.AddNode(Node{}); !errors.Is(err, ErrInvalidNodeID) {
		t.Errorf("empty ID: got %v, want ErrInvalidNodeID", err)
	}
	if err := g.AddNode(Node{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode(Node{ID: "a"}); !errors.Is(err, ErrDuplicateNodeID) {
		t.Errorf("duplicate: got %v, want ErrDuplicateNodeID", err)
	}
	if n, _ := g.Node("a"); n.Meta == nil {
		t.Error("Meta should be initialized")
	}
}

func TestAddEdgeErrors(t *testing.T) {
	g := build(t, []string{"a"}, nil)
	if err := g.AddEdge(Edge{From: "x", To: "a"}); !errors.Is(err, ErrUnknownSourceNode) {
		t.Errorf("got %v, want ErrUnknownSourceNode", err)
	}
	if err := g.AddEdge(Edge{From: "a", To: "x"}); !errors.Is(err, ErrUnknownTargetNode) {
		t.Errorf("got %v, want ErrUnknownTargetNode", err)
	}
}

func TestAdjacency(t *testing.T) {
	g := build(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"a", "b"}, {"a", "c"}, {"c", "b"}})

	if got := g.Children("a"); !slices.Equal(got, []string{"b", "c"}) {
		t.Errorf("Children(a) = %v", got)
	}
	if got := g.Parents("b"); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("Parents(b) = %v", got)
	}
	if g.OutDegree("a") != 3 || g.InDegree("b") != 3 {
		t.Errorf("degrees: out(a)=%d in(b)=%d", g.OutDegree("a"), g.InDegree("b"))
	}
	if len(g.Out("a")) != 3 || len(g.In("c")) != 1 {
		t.Error("Out/In should return every parallel edge")
	}
	if sinks := g.Sinks(); len(sinks) != 1 || sinks[0].ID != "b" {
		t.Errorf("Sinks() = %v", sinks)
	}
}

func TestCycles(t *testing.T) {
	g := build(t,
		[]string{"a", "b", "c", "d", "e"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"c", "d"}, {"e", "e"}},
	)
	got := g.Cycles()
	want := [][]string{{"a", "b", "c"}, {"e"}}
	if len(got) != len(want) {
		t.Fatalf("Cycles() = %v, want %v", got, want)
	}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Errorf("cycle %d = %v, want %v", i, got[i], want[i])
		}
	}

	acyclic := build(t, []string{"a", "b"}, [][2]string{{"a", "b"}})
	if c := acyclic.Cycles(); len(c) != 0 {
		t.Errorf("acyclic graph reported cycles: %v", c)
	}
}

func TestBFS(t *testing.T) {
	g := build(t,
		[]string{"a", "b", "c", "d"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"a", "c"}},
	)

	dist := g.BFS([]string{"a"}, 0, nil)
	want := map[string]int{"a": 0, "b": 1, "c": 1, "d": 2}
	for id, d := range want {
		if dist[id] != d {
			t.Errorf("dist[%s] = %d, want %d", id, dist[id], d)
		}
	}

	bounded := g.BFS([]string{"a"}, 1, nil)
	if _, ok := bounded["d"]; ok {
		t.Error("maxDepth 1 should not reach d")
	}

	filtered := g.BFS([]string{"a"}, 0, func(e Edge) bool { return !(e.From == "a" && e.To == "c") })
	if filtered["c"] != 2 {
		t.Errorf("filtered dist[c] = %d, want 2", filtered["c"])
	}
}
