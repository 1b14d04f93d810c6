package parsers

import (
	"strings"

	"github.com/matzehuels/contentgraph/pkg/content"
)

// Emitter collects the relationships and properties a parser declares for one item.
// Every edge it emits has the item as its source and is marked direct.
type Emitter struct {
	node  *content.Node
	rels  []content.Relationship
	extra []content.Node
}

func (e *Emitter) edge(t content.RelationshipType, target content.Ref, mandatory bool) *content.Relationship {
	if target.ObjectID == "" {
		return nil
	}
	e.rels = append(e.rels, content.Relationship{
		Type:               t,
		SourceID:           e.node.NodeID,
		SourceType:         e.node.ContentType,
		Target:             target,
		SourceMarketplaces: append([]content.Marketplace(nil), e.node.Marketplaces...),
		Mandatory:          mandatory && t.CarriesMandatory(),
		IsDirect:           true,
	})
	return &e.rels[len(e.rels)-1]
}

// Uses declares a USES edge to every id.
func (e *Emitter) Uses(target content.ContentType, mandatory bool, ids ...string) {
	for _, id := range ids {
		e.edge(content.Uses, content.Ref{Type: target, ObjectID: id}, mandatory)
	}
}

// UsesCommandOrScript declares a USES edge for a task or dependson entry. A
// "Brand|||command" or "|||command" reference always points at a command.
func (e *Emitter) UsesCommandOrScript(ref string, mandatory bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "-" {
		return
	}
	if i := strings.Index(ref, "|||"); i >= 0 {
		e.Uses(content.Command, mandatory, ref[i+3:])
		return
	}
	e.Uses(content.CommandOrScript, mandatory, ref)
}

// DependsOn declares a hand-authored pack dependency. Only packs emit these.
func (e *Emitter) DependsOn(packID string, mandatory bool) {
	e.edge(content.DependsOn, content.Ref{Type: content.Pack, ObjectID: packID}, mandatory)
}

// TestedBy declares TESTED_BY edges, ignoring "No test" markers.
func (e *Emitter) TestedBy(ids ...string) {
	for _, id := range ids {
		if strings.Contains(strings.ToLower(id), "no test") {
			continue
		}
		e.edge(content.TestedBy, content.Ref{Type: content.TestPlaybook, ObjectID: id}, false)
	}
}

// Imports declares an IMPORTS edge to an API module script.
func (e *Emitter) Imports(module string) {
	e.edge(content.Imports, content.Ref{Type: content.Script, ObjectID: module}, false)
}

// HasCommand declares a command node owned by the item and the HAS_COMMAND edge to it.
func (e *Emitter) HasCommand(name, description string, deprecated bool) {
	if name == "" {
		return
	}
	rel := e.edge(content.HasCommand, content.Ref{Type: content.Command, ObjectID: name}, false)
	rel.Properties = map[string]any{"description": description, "deprecated": deprecated}
	e.extra = append(e.extra, content.Node{
		NodeID:       content.NodeID(content.Command, name, ""),
		ContentType:  content.Command,
		ObjectID:     name,
		Name:         name,
		FromVersion:  content.DefaultFromVersion,
		ToVersion:    content.DefaultToVersion,
		Marketplaces: append([]content.Marketplace(nil), e.node.Marketplaces...),
		Source:       e.node.Source,
	})
}

// Set records a type-specific property. Empty strings and nil values are dropped.
func (e *Emitter) Set(key string, value any) {
	switch v := value.(type) {
	case nil:
		return
	case string:
		if v == "" {
			return
		}
	}
	if e.node.Properties == nil {
		e.node.Properties = make(map[string]any)
	}
	e.node.Properties[key] = value
}

// MarkTest flags the item as test content.
func (e *Emitter) MarkTest() {
	e.node.IsTest = true
}
