package content

import (
	"fmt"
	"slices"
	"strings"
)

// Ref points at a target by content type and object id. Resolution to node ids
// happens at commit and query time, so a Ref may be dangling.
type Ref struct {
	Type     ContentType `json:"content_type"`
	ObjectID string      `json:"object_id"`
}

// String returns "<type>:<object_id>".
func (r Ref) String() string {
	return string(r.Type) + ":" + r.ObjectID
}

// Relationship is an immutable directed edge declared by its source node.
type Relationship struct {
	Type               RelationshipType `json:"relationship_type"`
	SourceID           string           `json:"source_id"`
	SourceType         ContentType      `json:"source_type"`
	Target             Ref              `json:"target"`
	SourceMarketplaces []Marketplace    `json:"source_marketplaces,omitempty"`
	Mandatory          bool             `json:"mandatorily,omitempty"`
	IsDirect           bool             `json:"is_direct"`
	Properties         map[string]any   `json:"properties,omitempty"`
}

// Key identifies an edge. Two declarations with the same key are the same edge.
func (r Relationship) Key() string {
	return string(r.Type) + "|" + r.SourceID + "|" + r.Target.String()
}

// Validate checks the (source type, relation, target type) triple.
func (r Relationship) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("unknown relationship type %q", r.Type)
	}
	if r.SourceID == "" || r.Target.ObjectID == "" {
		return fmt.Errorf("%s: empty endpoint", r.Type)
	}
	if !r.SourceType.IsValid() {
		return fmt.Errorf("%s: invalid source type %q", r.Type, r.SourceType)
	}
	allowed, ok := allowedTargets[r.Type]
	if ok && !slices.Contains(allowed, r.Target.Type) {
		return fmt.Errorf("%s: %s cannot target %s", r.Type, r.SourceType, r.Target.Type)
	}
	if !ok && !r.Target.Type.IsValid() && r.Target.Type != CommandOrScript {
		return fmt.Errorf("%s: invalid target type %q", r.Type, r.Target.Type)
	}
	if sources, ok := allowedSources[r.Type]; ok && !slices.Contains(sources, r.SourceType) {
		return fmt.Errorf("%s: %s cannot be a source", r.Type, r.SourceType)
	}
	return nil
}

var allowedTargets = map[RelationshipType][]ContentType{
	InPack:     {Pack},
	HasCommand: {Command},
	TestedBy:   {TestPlaybook},
	Imports:    {Script},
	DependsOn:  {Pack},
}

var allowedSources = map[RelationshipType][]ContentType{
	HasCommand: {Integration},
	Imports:    {Integration, Script},
	DependsOn:  {Pack},
}

// SortRelationships orders edges by key.
func SortRelationships(rels []Relationship) {
	slices.SortFunc(rels, func(a, b Relationship) int {
		return strings.Compare(a.Key(), b.Key())
	})
}

// DedupeRelationships merges edges sharing a key. A repeated declaration keeps the
// first occurrence but ORs the mandatory flag, so a field declared both ways stays mandatory.
func DedupeRelationships(rels []Relationship) []Relationship {
	index := make(map[string]int, len(rels))
	out := make([]Relationship, 0, len(rels))
	for _, r := range rels {
		if i, ok := index[r.Key()]; ok {
			out[i].Mandatory = out[i].Mandatory || r.Mandatory
			continue
		}
		index[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}

// PackDependency is a derived pack-to-pack edge computed from item-level edges.
type PackDependency struct {
	Source    string `json:"source_pack_id"`
	Target    string `json:"target_pack_id"`
	Mandatory bool   `json:"mandatorily"`
	MinDepth  int    `json:"min_depth"`
}

// SortPackDependencies orders by source then target.
func SortPackDependencies(deps []PackDependency) {
	slices.SortFunc(deps, func(a, b PackDependency) int {
		if c := strings.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return strings.Compare(a.Target, b.Target)
	})
}
