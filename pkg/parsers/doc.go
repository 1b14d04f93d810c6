// Package parsers turns content item files into graph nodes and relationships.
//
// # Overview
//
// A [Registry] holds one [Parser] per content type, tried in a fixed order
// so that narrow predicates (a parsing rule has "rules" and "samples" and lives
// under ParsingRules/) win over broad ones (a YAML with a "script" key). The
// first match parses the document; when nothing matches, or the document is
// unreadable, out of the supported version range, or lacks an id, the result is
// a [Skip] rather than an error. Most files inside a pack are not content items,
// so skipping is the common case on the hot path.
//
// # Relationships
//
// Each parser declares the content its fields reference through an [Emitter].
// Whether a reference is mandatory is decided by a per-field policy table, for
// example an incident type's playbookId is a mandatory USES edge while an
// indicator field's associatedTypes are optional. Edges always point from the
// parsed item to the referenced one and name the target by content type and
// object id; resolution to node ids happens in the graph.
//
// # Usage
//
//	reg := parsers.DefaultRegistry()
//	out := reg.Parse("/repo/Packs/Core/Scripts/Hello", parsers.PackContext{
//	    PackID:       "Core",
//	    Marketplaces: []content.Marketplace{content.MarketplaceXSOAR},
//	    RepoRoot:     "/repo",
//	})
//	if out.Skipped() {
//	    log.Debug("skip", "reason", out.Skip.Reason)
//	}
package parsers
