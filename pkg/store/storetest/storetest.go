// Package storetest is a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	"github.com/matzehuels/contentgraph/pkg/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Node builds a node owned by pack.
func Node(t content.ContentType, objectID, pack string) content.Node {
	return content.Node{
		NodeID:       content.NodeID(t, objectID, ""),
		ContentType:  t,
		ObjectID:     objectID,
		Name:         objectID,
		FromVersion:  content.DefaultFromVersion,
		ToVersion:    content.DefaultToVersion,
		Marketplaces: []content.Marketplace{content.MarketplaceXSOAR},
		PackID:       pack,
	}
}

// Uses builds a USES edge from src to target.
func Uses(src content.Node, target content.Ref, mandatory bool) content.Relationship {
	return content.Relationship{
		Type:       content.Uses,
		SourceID:   src.NodeID,
		SourceType: src.ContentType,
		Target:     target,
		Mandatory:  mandatory,
		IsDirect:   true,
	}
}

// Run exercises every Store operation against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertNodesReplacesByID", func(t *testing.T) { testUpsertNodes(t, newStore) })
	t.Run("ReferentialOrder", func(t *testing.T) { testReferentialOrder(t, newStore) })
	t.Run("UpsertRelationshipsIdempotent", func(t *testing.T) { testUpsertRelationships(t, newStore) })
	t.Run("DeletePacks", func(t *testing.T) { testDeletePacks(t, newStore) })
	t.Run("DeleteNodes", func(t *testing.T) { testDeleteNodes(t, newStore) })
	t.Run("PackDependencies", func(t *testing.T) { testPackDependencies(t, newStore) })
	t.Run("Meta", func(t *testing.T) { testMeta(t, newStore) })
	t.Run("Clear", func(t *testing.T) { testClear(t, newStore) })
}

func open(t *testing.T, newStore Factory) store.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testUpsertNodes(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	a := Node(content.Script, "A", "Core")
	require.NoError(t, s.UpsertNodes(ctx, []content.Node{a, Node(content.Pack, "Core", "Core")}))

	a.Name = "renamed"
	a.Properties = map[string]any{"type": "python"}
	require.NoError(t, s.UpsertNodes(ctx, []content.Node{a}))

	nodes, err := s.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "Pack:Core", nodes[0].NodeID)
	assert.Equal(t, "renamed", nodes[1].Name)
	assert.Equal(t, "python", nodes[1].Property("type"))
}

func testReferentialOrder(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	a := Node(content.Script, "A", "Core")
	b := Node(content.Script, "B", "Core")
	require.NoError(t, s.UpsertNodes(ctx, []content.Node{a}))

	err := s.UpsertRelationships(ctx, []content.Relationship{
		Uses(a, content.Ref{Type: content.Script, ObjectID: "X"}, true),
		Uses(b, content.Ref{Type: content.Script, ObjectID: "Y"}, true),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrReferentialOrder))
	assert.True(t, cgerrors.IsFatal(err))

	rels, err := s.Relationships(ctx)
	require.NoError(t, err)
	assert.Empty(t, rels, "a rejected batch must not be partially written")
}

func testUpsertRelationships(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	a := Node(content.Script, "A", "Core")
	require.NoError(t, s.UpsertNodes(ctx, []content.Node{a}))

	rel := Uses(a, content.Ref{Type: content.Script, ObjectID: "Missing"}, false)
	require.NoError(t, s.UpsertRelationships(ctx, []content.Relationship{rel}))
	rel.Mandatory = true
	require.NoError(t, s.UpsertRelationships(ctx, []content.Relationship{rel}))

	rels, err := s.Relationships(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1, "dangling targets are stored and keys are unique")
	assert.True(t, rels[0].Mandatory)
	assert.Equal(t, content.Ref{Type: content.Script, ObjectID: "Missing"}, rels[0].Target)
}

func testDeletePacks(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	corePack := Node(content.Pack, "Core", "Core")
	core := Node(content.Script, "CoreScript", "Core")
	other := Node(content.Script, "OtherScript", "Other")
	cmd := Node(content.Command, "cmd", "")
	require.NoError(t, s.UpsertNodes(ctx, []content.Node{corePack, core, other, cmd}))
	require.NoError(t, s.UpsertRelationships(ctx, []content.Relationship{
		Uses(core, other.Ref(), true),
		Uses(other, core.Ref(), true),
	}))

	n, err := s.DeletePacks(ctx, []string{"Core"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	nodes, err := s.Nodes(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.NodeID)
	}
	assert.Equal(t, []string{"Command:cmd", "Script:OtherScript"}, ids)

	rels, err := s.Relationships(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, other.NodeID, rels[0].SourceID, "incoming edges of other packs survive")
}

func testDeleteNodes(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	a := Node(content.Script, "A", "Core")
	b := Node(content.Script, "B", "Core")
	require.NoError(t, s.UpsertNodes(ctx, []content.Node{a, b}))
	require.NoError(t, s.UpsertRelationships(ctx, []content.Relationship{Uses(a, b.Ref(), true)}))

	require.NoError(t, s.DeleteNodes(ctx, []string{a.NodeID}))
	nodes, err := s.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	rels, err := s.Relationships(ctx)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func testPackDependencies(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	for _, p := range []string{"A", "B", "C"} {
		require.NoError(t, s.UpsertNodes(ctx, []content.Node{Node(content.Pack, p, p)}))
	}
	first := []content.PackDependency{
		{Source: "B", Target: "C", Mandatory: false, MinDepth: 2},
		{Source: "A", Target: "B", Mandatory: true, MinDepth: 1},
	}
	require.NoError(t, s.ReplacePackDependencies(ctx, first))
	deps, err := s.PackDependencies(ctx)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "A", deps[0].Source)

	require.NoError(t, s.ReplacePackDependencies(ctx, []content.PackDependency{
		{Source: "C", Target: "A", Mandatory: true, MinDepth: 1},
	}))
	deps, err = s.PackDependencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []content.PackDependency{{Source: "C", Target: "A", Mandatory: true, MinDepth: 1}}, deps)

	require.NoError(t, s.ReplacePackDependencies(ctx, nil))
	deps, err = s.PackDependencies(ctx)
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func testMeta(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	_, ok, err := s.Meta(ctx, store.MetaCommit)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMeta(ctx, store.MetaCommit, "abc123"))
	v, ok, err := s.Meta(ctx, store.MetaCommit)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)
}

func testClear(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	a := Node(content.Script, "A", "Core")
	require.NoError(t, s.UpsertNodes(ctx, []content.Node{a}))
	require.NoError(t, s.UpsertRelationships(ctx, []content.Relationship{Uses(a, a.Ref(), false)}))
	require.NoError(t, s.SetMeta(ctx, store.MetaCommit, "x"))
	require.NoError(t, s.Clear(ctx))

	nodes, err := s.Nodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	rels, err := s.Relationships(ctx)
	require.NoError(t, err)
	assert.Empty(t, rels)
	_, ok, err := s.Meta(ctx, store.MetaCommit)
	require.NoError(t, err)
	assert.False(t, ok)
}
