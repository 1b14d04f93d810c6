// Package pipeline orchestrates full and incremental content graph builds.
//
// # Overview
//
// A [Runner] ties a graph, a builder, an optional remote snapshot store and an
// optional git reader together. It exposes the two entry points CI jobs run:
//
//   - [Runner.CreateContentGraph] rebuilds the graph from every pack
//   - [Runner.UpdateContentGraph] starts from a snapshot and reparses only
//     what changed
//
// Both finish by recomputing pack dependencies (when asked) and exporting
// <output>/<marketplace>.zip.
//
// # Update States
//
//	start ──► use-current ───────────────┐
//	  │                                   ▼
//	  └──► import-remote ──► import-merged ──► update-incremental ──► export
//	           │                  │                 ▲
//	           └──► create-fresh ◄┘ (local only)    │
//	                     └──────────────────────────┘
//
// A failed download or an unusable snapshot moves to create-fresh; the store
// is never left half loaded. When a merge with the shared snapshot fails, the
// locally built snapshot is imported instead, never the shared one alone.
//
// Every other non-fatal failure of an update is caught by a single fallback
// around the whole update, which runs a full create. Store failures and
// referential-order violations are fatal and returned as is.
//
// Setting CONTENTGRAPH_FORCE_CREATE turns every update into a create.
package pipeline
