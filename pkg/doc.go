// Package pkg provides the libraries behind contentgraph.
//
// # Overview
//
// contentgraph parses a content repository (packs of integrations, scripts,
// playbooks and the other content types) into a graph of content items and
// the relationships between them, derives pack-to-pack dependencies from that
// graph, and keeps it current through snapshots and incremental updates. The
// pkg directory is organized into four areas:
//
//  1. Domain - [content] types, [parsers] for every content type, [digraph]
//     adjacency, [deps] pack dependency calculation
//  2. Graph - [store] backends (memory, badger, neo4j) behind the [graph]
//     handle, [builder] for full and incremental builds
//  3. Snapshots - [io] archive format and merge, [remote] stores (GCS, HTTP,
//     directory), [cache] for downloaded archives
//  4. Orchestration - [pipeline] for the create and update state machine
//
// # Architecture
//
// The typical data flow:
//
//	Packs/<pack>/...
//	       ↓
//	  [parsers] (one content item per file, relationships per item)
//	       ↓
//	  [builder] (batches per pack, two-phase commit)
//	       ↓
//	  [graph] over a [store] (nodes, relationships, commit metadata)
//	       ↓
//	  [deps] (pack dependencies with min depth and mandatory flag)
//	       ↓
//	  [io] snapshot → [remote]
//
// # Quick Start
//
// Build a graph and query it:
//
//	g, _ := graph.Open(store.NewMemory(), graph.Options{RepoRoot: repo})
//	defer g.Close()
//
//	b := builder.New(g, builder.Options{RepoRoot: repo})
//	if _, err := b.CreateGraph(ctx); err != nil {
//	    return err
//	}
//	if _, err := g.CreatePackDependencies(ctx, graph.DependencyOptions{}); err != nil {
//	    return err
//	}
//
//	res, _ := g.RelationshipsByPath(ctx, graph.Query{
//	    Path:  "Packs/Phishing/Playbooks/playbook-Phishing.yml",
//	    Depth: 2,
//	})
//
// # Supporting Packages
//
// [config] loads contentgraph.toml with environment overrides. [errors]
// defines the error codes every package returns. [gitutil] reads changed
// packs from git. [observability] carries the hook interfaces implemented by
// [observability/prom]. [render] draws the pack dependency graph as DOT or
// SVG. [buildinfo] holds the version set at link time.
//
// [content]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/content
// [parsers]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/parsers
// [digraph]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/digraph
// [deps]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/deps
// [store]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/store
// [graph]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/graph
// [builder]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/builder
// [io]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/io
// [remote]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/remote
// [cache]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/cache
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/pipeline
// [config]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/config
// [errors]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/errors
// [gitutil]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/gitutil
// [observability]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/observability
// [observability/prom]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/observability/prom
// [render]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/render
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/contentgraph/pkg/buildinfo
package pkg
