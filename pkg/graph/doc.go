// Package graph is the interface every content graph operation goes through.
//
// A [Graph] wraps a [store.Store] and adds the operations builds, updates and
// read-only commands need:
//
//   - [Graph.Commit] writes a batch of nodes and relationships in two phases
//   - [Graph.RemovePacks] drops packs before they are re-parsed
//   - [Graph.ImportGraph] and [Graph.ExportGraph] move snapshots in and out
//   - [Graph.CreatePackDependencies] recomputes derived pack dependencies
//   - [Graph.RelationshipsByPath], [Graph.PackDependencies] and
//     [Graph.DanglingReferences] answer queries
//
// # Lifecycle
//
// A Graph is acquired once per command and released with Close on every
// exit path:
//
//	g, err := graph.Open(store.NewMemory(), graph.Options{RepoRoot: repo})
//	if err != nil {
//	    return err
//	}
//	defer g.Close()
//
// # Import Staging
//
// Snapshots are staged in a dedicated import directory. [Graph.CleanImportDir]
// empties it and [Graph.MoveToImportDir] stages a freshly downloaded archive,
// so a partial download never mixes with a previous good one. ImportGraph
// reports failure as false and leaves the store empty; callers fall back to
// a full build.
//
// # Relationship Queries
//
// RelationshipsByPath returns two record lists. Sources are items with a path
// to the queried item, targets are items it has a path to. Each record carries
// the shortest path length, whether a fully mandatory path exists, and up to
// 100 example paths. The result can be written as get_relationships_outputs.json
// with [RelationshipResult.WriteOutputs].
package graph
