// Package builder walks a content repository and fills a graph from it.
//
// # Overview
//
// A repository holds packs under Packs/<id>. Each pack has a
// pack_metadata.json manifest and one directory per content kind
// (Integrations, Scripts, Playbooks, IncidentFields, ...). The builder reads
// the manifest, hands every entry of every content directory to the parser
// registry, and commits the resulting nodes and relationships through
// [graph.Graph.Commit].
//
// # Failure Policy
//
// Entries the registry skips are counted and logged at debug level; they never
// stop the walk. A pack whose manifest cannot be read is fatal for that pack
// only: it is reported in [Stats.FailedPacks], logged at warn level, and the
// remaining packs are still built.
//
// # Incremental Updates
//
// [Builder.UpdateGraph] invalidates at pack granularity. Every named pack is
// removed from the graph and parsed again in full, so the stored result equals
// what a full [Builder.CreateGraph] of the modified repository would hold for
// those packs. Packs whose directory is gone are only removed.
package builder
