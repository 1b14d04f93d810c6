// Package io reads, writes and merges content graph snapshots.
//
// # Overview
//
// A snapshot is a zip archive holding the complete node and relationship set
// of a graph plus its derived pack dependencies. Snapshots are how a graph
// travels: CI jobs export one per marketplace, later jobs import it instead of
// rebuilding, and repositories that extend a shared content set merge their
// locally built snapshot with the shared one.
//
// # Archive Layout
//
//	manifest.json            schema version, snapshot id, marketplace, commit, counts
//	nodes.json               [content.Node, ...] sorted by node id
//	relationships.json       [content.Relationship, ...] sorted by key
//	pack_dependencies.json   [content.PackDependency, ...] sorted by source, target
//
// Archives are named by marketplace ("xsoar.zip", see [FileName]).
//
// # Failure Modes
//
// [ReadSnapshot] distinguishes a corrupt archive ([ErrCorrupt]) from one written
// by another schema version ([ErrIncompatible]). Importers in package graph treat
// both as "no snapshot" and fall back to a full build.
//
// # Merging
//
// [MergeSnapshots] gives local content precedence per pack and drops derived
// dependencies, which the caller recomputes after importing the result.
package io
