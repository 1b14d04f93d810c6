package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/matzehuels/contentgraph/pkg/content"
)

// Memory is an in-process Store. It backs tests, local-only builds that are
// exported right away, and snapshot merges.
type Memory struct {
	mu     sync.RWMutex
	nodes  map[string]content.Node
	rels   map[string]content.Relationship
	deps   []content.PackDependency
	meta   map[string]string
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[string]content.Node),
		rels:  make(map[string]content.Relationship),
		meta:  make(map[string]string),
	}
}

func (m *Memory) UpsertNodes(_ context.Context, nodes []content.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, n := range nodes {
		m.nodes[n.NodeID] = n.Clone()
	}
	return nil
}

func (m *Memory) UpsertRelationships(_ context.Context, rels []content.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	missing := MissingSources(rels, func(id string) bool {
		_, ok := m.nodes[id]
		return ok
	})
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrReferentialOrder, strings.Join(missing, ", "))
	}
	for _, r := range rels {
		m.rels[r.Key()] = r
	}
	return nil
}

func (m *Memory) DeletePacks(_ context.Context, packIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	var ids []string
	for id, n := range m.nodes {
		if n.PackID != "" && slices.Contains(packIDs, n.PackID) {
			ids = append(ids, id)
		}
	}
	m.deleteNodes(ids)
	return len(ids), nil
}

func (m *Memory) DeleteNodes(_ context.Context, nodeIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.deleteNodes(nodeIDs)
	return nil
}

func (m *Memory) deleteNodes(ids []string) {
	if len(ids) == 0 {
		return
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
		delete(m.nodes, id)
	}
	for key, r := range m.rels {
		if set[r.SourceID] {
			delete(m.rels, key)
		}
	}
}

func (m *Memory) Nodes(_ context.Context) ([]content.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]content.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n.Clone())
	}
	content.SortNodes(out)
	return out, nil
}

func (m *Memory) Relationships(_ context.Context) ([]content.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]content.Relationship, 0, len(m.rels))
	for _, r := range m.rels {
		out = append(out, r)
	}
	content.SortRelationships(out)
	return out, nil
}

func (m *Memory) ReplacePackDependencies(_ context.Context, deps []content.PackDependency) error {
	next := slices.Clone(deps)
	content.SortPackDependencies(next)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.deps = next
	return nil
}

func (m *Memory) PackDependencies(_ context.Context) ([]content.PackDependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return slices.Clone(m.deps), nil
}

func (m *Memory) SetMeta(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.meta[key] = value
	return nil
}

func (m *Memory) Meta(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.meta[key]
	return v, ok, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	clear(m.nodes)
	clear(m.rels)
	clear(m.meta)
	m.deps = nil
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
