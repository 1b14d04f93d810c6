package content

import (
	"maps"
	"slices"
	"strings"
)

// Node is a parsed content entity. Type-specific attributes live in Properties;
// the common fields below are shared by every content type.
type Node struct {
	NodeID       string         `json:"node_id"`
	ContentType  ContentType    `json:"content_type"`
	ObjectID     string         `json:"object_id"`
	Name         string         `json:"name,omitempty"`
	Description  string         `json:"description,omitempty"`
	FromVersion  string         `json:"fromversion,omitempty"`
	ToVersion    string         `json:"toversion,omitempty"`
	Marketplaces []Marketplace  `json:"marketplaces,omitempty"`
	Deprecated   bool           `json:"deprecated,omitempty"`
	IsTest       bool           `json:"is_test,omitempty"`
	Source       string         `json:"source,omitempty"`
	FilePath     string         `json:"file_path,omitempty"`
	PackID       string         `json:"pack_id,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// NodeID composes the unique key for a node. The toversion is appended only when it
// is set below DefaultToVersion, so version-scoped duplicates stay distinct.
func NodeID(t ContentType, objectID, toVersion string) string {
	id := string(t) + ":" + objectID
	if toVersion != "" && toVersion != DefaultToVersion {
		id += "_" + toVersion
	}
	return id
}

// PackNodeID returns the node id of a pack.
func PackNodeID(packID string) string {
	return NodeID(Pack, packID, "")
}

// Ref returns a reference that resolves to this node.
func (n Node) Ref() Ref {
	return Ref{Type: n.ContentType, ObjectID: n.ObjectID}
}

// InMarketplace reports whether the node ships to m. An empty marketplace matches all nodes.
func (n Node) InMarketplace(m Marketplace) bool {
	return m == "" || slices.Contains(n.Marketplaces, m)
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	c := n
	c.Marketplaces = slices.Clone(n.Marketplaces)
	c.Properties = maps.Clone(n.Properties)
	return c
}

// Property returns a string property or "".
func (n Node) Property(key string) string {
	if v, ok := n.Properties[key].(string); ok {
		return v
	}
	return ""
}

// SortNodes orders nodes by node id.
func SortNodes(nodes []Node) {
	slices.SortFunc(nodes, func(a, b Node) int {
		return strings.Compare(a.NodeID, b.NodeID)
	})
}
