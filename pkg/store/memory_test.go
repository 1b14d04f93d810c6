package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/store"
	"github.com/matzehuels/contentgraph/pkg/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return store.NewMemory() })
}

func TestMemoryClosed(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertNodes(ctx, []content.Node{{NodeID: "Script:A"}}); !errors.Is(err, store.ErrClosed) {
		t.Errorf("UpsertNodes after Close = %v, want ErrClosed", err)
	}
	if _, err := m.Nodes(ctx); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Nodes after Close = %v, want ErrClosed", err)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	n := storetest.Node(content.Script, "A", "Core")
	n.Properties = map[string]any{"type": "python"}
	if err := m.UpsertNodes(ctx, []content.Node{n}); err != nil {
		t.Fatal(err)
	}
	n.Properties["type"] = "javascript"

	nodes, _ := m.Nodes(ctx)
	nodes[0].Marketplaces[0] = content.MarketplaceXPANSE
	again, _ := m.Nodes(ctx)
	if got := again[0].Property("type"); got != "python" {
		t.Errorf("stored property mutated through caller's map: %q", got)
	}
	if again[0].Marketplaces[0] != content.MarketplaceXSOAR {
		t.Errorf("stored marketplaces mutated through returned slice")
	}
}

func TestMissingSources(t *testing.T) {
	rels := []content.Relationship{
		{SourceID: "a"}, {SourceID: "b"}, {SourceID: "a"}, {SourceID: "c"},
	}
	got := store.MissingSources(rels, func(id string) bool { return id == "b" })
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("MissingSources = %v, want [a c]", got)
	}
}
