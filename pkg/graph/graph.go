package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	"github.com/matzehuels/contentgraph/pkg/observability"
	"github.com/matzehuels/contentgraph/pkg/store"
)

// Options configures a Graph handle.
type Options struct {
	// RepoRoot is the content repository. Query paths are resolved against it.
	RepoRoot string

	// ImportDir is the snapshot staging area. Defaults to a directory under
	// the system temp dir.
	ImportDir string

	Logger *log.Logger
}

// Graph is the handle every graph operation goes through. It owns the
// backing store: Close releases it, and callers acquire a Graph once per
// command and defer Close.
//
// A Graph is not safe for concurrent writers.
type Graph struct {
	store     store.Store
	repoRoot  string
	importDir string
	logger    *log.Logger
}

// Batch is the unit of a two-phase commit.
type Batch struct {
	Nodes         []content.Node
	Relationships []content.Relationship
}

// Stats summarizes the stored graph.
type Stats struct {
	Nodes            int                         `json:"nodes"`
	Relationships    int                         `json:"relationships"`
	Packs            int                         `json:"packs"`
	PackDependencies int                         `json:"pack_dependencies"`
	ByType           map[content.ContentType]int `json:"by_type"`
}

// Open wraps s in a Graph handle and prepares the import directory.
func Open(s store.Store, opts Options) (*Graph, error) {
	if s == nil {
		return nil, cgerrors.New(cgerrors.ErrCodeInternal, "graph: nil store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	importDir := opts.ImportDir
	if importDir == "" {
		importDir = filepath.Join(os.TempDir(), "contentgraph", "import")
	}
	if err := os.MkdirAll(importDir, 0755); err != nil {
		return nil, fmt.Errorf("create import dir: %w", err)
	}
	return &Graph{
		store:     s,
		repoRoot:  opts.RepoRoot,
		importDir: importDir,
		logger:    logger,
	}, nil
}

// Close releases the backing store.
func (g *Graph) Close() error {
	return g.store.Close()
}

// RepoRoot returns the repository the graph was opened for.
func (g *Graph) RepoRoot() string { return g.repoRoot }

// Commit writes a batch in two phases: every node first, then every
// relationship. A relationship whose source is neither in the batch nor
// already stored fails the commit with a REFERENTIAL_ORDER error. Targets are
// never checked; unresolved targets are reported by DanglingReferences.
func (g *Graph) Commit(ctx context.Context, b Batch) (err error) {
	start := time.Now()
	defer func() {
		observability.Graph().OnCommit(ctx, len(b.Nodes), len(b.Relationships), time.Since(start), err)
	}()

	for _, n := range b.Nodes {
		if n.NodeID == "" || !n.ContentType.IsValid() {
			return cgerrors.New(cgerrors.ErrCodeInvalidContentType, "invalid node %q of type %q", n.NodeID, n.ContentType)
		}
	}
	for _, r := range b.Relationships {
		if err := r.Validate(); err != nil {
			return cgerrors.Wrap(cgerrors.ErrCodeInvalidRelationship, err, "relationship from %s", r.SourceID)
		}
	}

	nodes, err := g.mergeCommands(ctx, b)
	if err != nil {
		return err
	}
	if err := g.store.UpsertNodes(ctx, nodes); err != nil {
		return storeError(err, "commit nodes")
	}
	if err := g.store.UpsertRelationships(ctx, content.DedupeRelationships(b.Relationships)); err != nil {
		return storeError(err, "commit relationships")
	}
	g.logger.Debug("committed batch", "nodes", len(nodes), "relationships", len(b.Relationships))
	return nil
}

// mergeCommands collapses repeated command nodes. A command's marketplaces
// are the union over every integration providing it: those in the batch and
// the stored integrations outside it. The stored command node itself is not
// consulted, so marketplaces an updated integration dropped do not linger.
func (g *Graph) mergeCommands(ctx context.Context, b Batch) ([]content.Node, error) {
	commands := make(map[string]int)
	inBatch := make(map[string]bool, len(b.Nodes))
	out := make([]content.Node, 0, len(b.Nodes))
	for _, n := range b.Nodes {
		inBatch[n.NodeID] = true
		if n.ContentType != content.Command {
			out = append(out, n)
			continue
		}
		if i, ok := commands[n.NodeID]; ok {
			out[i].Marketplaces = unionMarketplaces(out[i].Marketplaces, n.Marketplaces)
			continue
		}
		commands[n.NodeID] = len(out)
		out = append(out, n.Clone())
	}
	if len(commands) == 0 {
		return out, nil
	}

	nodes, rels, err := g.read(ctx)
	if err != nil {
		return nil, err
	}
	stored := make(map[string]content.Node, len(nodes))
	for _, n := range nodes {
		stored[n.NodeID] = n
	}
	for _, r := range rels {
		if r.Type != content.HasCommand || inBatch[r.SourceID] {
			continue
		}
		i, ok := commands[content.NodeID(content.Command, r.Target.ObjectID, "")]
		if !ok {
			continue
		}
		provider, ok := stored[r.SourceID]
		if !ok {
			continue
		}
		out[i].Marketplaces = unionMarketplaces(out[i].Marketplaces, provider.Marketplaces)
	}
	return out, nil
}

func unionMarketplaces(a, b []content.Marketplace) []content.Marketplace {
	out := slices.Clone(a)
	for _, m := range b {
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return content.SortMarketplaces(out)
}

// RemovePacks deletes every node of the given packs and then every command no
// remaining integration provides. It returns the number of nodes removed.
func (g *Graph) RemovePacks(ctx context.Context, packIDs []string) (int, error) {
	if len(packIDs) == 0 {
		return 0, nil
	}
	removed, err := g.store.DeletePacks(ctx, packIDs)
	if err != nil {
		return 0, storeError(err, "delete packs")
	}
	orphans, err := g.RemoveOrphanCommands(ctx)
	if err != nil {
		return removed, err
	}
	return removed + orphans, nil
}

// RemoveNodes deletes the given nodes with their outgoing relationships and
// then every command no remaining integration provides.
func (g *Graph) RemoveNodes(ctx context.Context, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	if err := g.store.DeleteNodes(ctx, nodeIDs); err != nil {
		return storeError(err, "delete nodes")
	}
	_, err := g.RemoveOrphanCommands(ctx)
	return err
}

// RemoveOrphanCommands deletes command nodes without a HAS_COMMAND edge.
func (g *Graph) RemoveOrphanCommands(ctx context.Context) (int, error) {
	nodes, rels, err := g.read(ctx)
	if err != nil {
		return 0, err
	}
	provided := make(map[string]bool)
	for _, r := range rels {
		if r.Type == content.HasCommand {
			provided[r.Target.ObjectID] = true
		}
	}
	var orphans []string
	for _, n := range nodes {
		if n.ContentType == content.Command && !provided[n.ObjectID] {
			orphans = append(orphans, n.NodeID)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	if err := g.store.DeleteNodes(ctx, orphans); err != nil {
		return 0, storeError(err, "delete orphan commands")
	}
	g.logger.Debug("removed orphan commands", "count", len(orphans))
	return len(orphans), nil
}

// Clear removes all stored data.
func (g *Graph) Clear(ctx context.Context) error {
	if err := g.store.Clear(ctx); err != nil {
		return storeError(err, "clear")
	}
	return nil
}

// Stats counts the stored records.
func (g *Graph) Stats(ctx context.Context) (Stats, error) {
	nodes, rels, err := g.read(ctx)
	if err != nil {
		return Stats{}, err
	}
	deps, err := g.store.PackDependencies(ctx)
	if err != nil {
		return Stats{}, storeError(err, "read pack dependencies")
	}
	st := Stats{
		Nodes:            len(nodes),
		Relationships:    len(rels),
		PackDependencies: len(deps),
		ByType:           make(map[content.ContentType]int),
	}
	for _, n := range nodes {
		st.ByType[n.ContentType]++
		if n.ContentType == content.Pack {
			st.Packs++
		}
	}
	return st, nil
}

// CommitHash returns the repository commit the graph was last built from.
func (g *Graph) CommitHash(ctx context.Context) (string, error) {
	v, _, err := g.store.Meta(ctx, store.MetaCommit)
	if err != nil {
		return "", storeError(err, "read commit")
	}
	return v, nil
}

// SetCommitHash records the repository commit the graph reflects.
func (g *Graph) SetCommitHash(ctx context.Context, commit string) error {
	if err := g.store.SetMeta(ctx, store.MetaCommit, commit); err != nil {
		return storeError(err, "write commit")
	}
	return g.store.SetMeta(ctx, store.MetaUpdatedAt, time.Now().UTC().Format(time.RFC3339))
}

// Nodes returns every stored node.
func (g *Graph) Nodes(ctx context.Context) ([]content.Node, error) {
	nodes, err := g.store.Nodes(ctx)
	if err != nil {
		return nil, storeError(err, "read nodes")
	}
	return nodes, nil
}

func (g *Graph) read(ctx context.Context) ([]content.Node, []content.Relationship, error) {
	nodes, err := g.store.Nodes(ctx)
	if err != nil {
		return nil, nil, storeError(err, "read nodes")
	}
	rels, err := g.store.Relationships(ctx)
	if err != nil {
		return nil, nil, storeError(err, "read relationships")
	}
	return nodes, rels, nil
}

// storeError tags a backend failure as fatal unless it already carries a code.
func storeError(err error, op string) error {
	var coded *cgerrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return cgerrors.Wrap(cgerrors.ErrCodeStore, err, "%s", op)
}
