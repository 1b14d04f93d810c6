package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	"github.com/matzehuels/contentgraph/pkg/graph"
	"github.com/matzehuels/contentgraph/pkg/observability"
	"github.com/matzehuels/contentgraph/pkg/parsers"
)

// Build modes reported to the pipeline hooks.
const (
	ModeCreate = "create"
	ModeUpdate = "update"
)

// Options configures a Builder.
type Options struct {
	// RepoRoot is the repository holding the Packs directory.
	RepoRoot string

	// Source tags every node with the repository it came from.
	Source string

	// Registry parses content items. Defaults to parsers.DefaultRegistry().
	Registry *parsers.Registry

	Logger *log.Logger
}

// Builder parses packs and commits them to a graph. It keeps no state between
// calls beyond its configuration.
type Builder struct {
	graph    *graph.Graph
	repoRoot string
	source   string
	registry *parsers.Registry
	logger   *log.Logger
}

// Stats summarizes one build.
type Stats struct {
	Packs         int                         `json:"packs"`
	FailedPacks   []string                    `json:"failed_packs,omitempty"`
	RemovedPacks  []string                    `json:"removed_packs,omitempty"`
	Items         int                         `json:"items"`
	Skipped       map[parsers.SkipReason]int  `json:"skipped,omitempty"`
	Nodes         int                         `json:"nodes"`
	Relationships int                         `json:"relationships"`
	ByType        map[content.ContentType]int `json:"by_type"`
	Collisions    []Collision                 `json:"collisions,omitempty"`
	Duration      time.Duration               `json:"duration"`
}

// Collision records an item id defined by more than one pack. The pack that
// sorts first owns the item; the copies in later packs are dropped.
type Collision struct {
	NodeID  string `json:"node_id"`
	Owner   string `json:"owner"`
	Dropped string `json:"dropped"`
}

// SkippedTotal returns the number of skipped paths over all reasons.
func (s *Stats) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

func newStats() *Stats {
	return &Stats{
		Skipped: make(map[parsers.SkipReason]int),
		ByType:  make(map[content.ContentType]int),
	}
}

func (s *Stats) add(b *graph.Batch) {
	s.Nodes += len(b.Nodes)
	s.Relationships += len(b.Relationships)
	for _, n := range b.Nodes {
		s.ByType[n.ContentType]++
	}
}

// New returns a builder writing to g.
func New(g *graph.Graph, opts Options) *Builder {
	reg := opts.Registry
	if reg == nil {
		reg = parsers.DefaultRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	root := opts.RepoRoot
	if root == "" {
		root = g.RepoRoot()
	}
	return &Builder{graph: g, repoRoot: root, source: opts.Source, registry: reg, logger: logger}
}

// PackIDs lists the packs present in the repository, sorted.
func (b *Builder) PackIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(b.repoRoot, content.PacksDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, cgerrors.New(cgerrors.ErrCodeFileNotFound, "no %s directory in %s", content.PacksDir, b.repoRoot)
		}
		return nil, fmt.Errorf("list packs: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// CreateGraph clears the graph and builds it from every pack in the
// repository in one batch.
func (b *Builder) CreateGraph(ctx context.Context) (stats *Stats, err error) {
	start := time.Now()
	stats = newStats()
	defer func() {
		stats.Duration = time.Since(start)
		observability.Pipeline().OnBuildComplete(ctx, ModeCreate, stats.Nodes, stats.Relationships, stats.Duration, err)
	}()

	ids, err := b.PackIDs()
	if err != nil {
		return stats, err
	}
	b.logger.Info("building content graph", "packs", len(ids), "repo", b.repoRoot)

	batch, _, err := b.parsePacks(ctx, ids, newOwners(), stats)
	if err != nil {
		return stats, err
	}
	if err := b.graph.Clear(ctx); err != nil {
		return stats, err
	}
	if err := b.graph.Commit(ctx, *batch); err != nil {
		return stats, err
	}
	b.logSummary("created content graph", stats)
	return stats, nil
}

// UpdateGraph re-parses the named packs in full and replaces their content in
// the graph. Content of other packs is untouched. Named packs whose directory
// no longer exists are removed. A pack whose manifest fails to load keeps its
// previous content.
func (b *Builder) UpdateGraph(ctx context.Context, packIDs []string) (stats *Stats, err error) {
	start := time.Now()
	stats = newStats()
	defer func() {
		stats.Duration = time.Since(start)
		observability.Pipeline().OnBuildComplete(ctx, ModeUpdate, stats.Nodes, stats.Relationships, stats.Duration, err)
	}()

	ids := slices.Clone(packIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		b.logger.Info("no packs to update")
		return stats, nil
	}

	var present []string
	for _, id := range ids {
		if err := cgerrors.ValidatePackID(id); err != nil {
			return stats, err
		}
		if _, err := os.Stat(b.packDir(id)); errors.Is(err, os.ErrNotExist) {
			stats.RemovedPacks = append(stats.RemovedPacks, id)
			continue
		}
		present = append(present, id)
	}
	b.logger.Info("updating content graph", "packs", len(present), "deleted", len(stats.RemovedPacks))

	stored, err := b.storedOwners(ctx, ids)
	if err != nil {
		return stats, err
	}
	batch, displaced, err := b.parsePacks(ctx, present, stored, stats)
	if err != nil {
		return stats, err
	}

	invalidate := slices.Clone(stats.RemovedPacks)
	for _, id := range present {
		if !slices.Contains(stats.FailedPacks, id) {
			invalidate = append(invalidate, id)
		}
	}
	removed, err := b.graph.RemovePacks(ctx, invalidate)
	if err != nil {
		return stats, err
	}
	b.logger.Debug("invalidated packs", "packs", invalidate, "nodes", removed)
	if err := b.graph.RemoveNodes(ctx, displaced); err != nil {
		return stats, err
	}

	if err := b.graph.Commit(ctx, *batch); err != nil {
		return stats, err
	}
	b.logSummary("updated content graph", stats)
	return stats, nil
}

// owners maps item node ids to the pack that defines them. Stored entries
// come from packs outside the current parse.
type owners struct {
	pack   map[string]string
	stored map[string]bool
}

func newOwners() *owners {
	return &owners{pack: make(map[string]string), stored: make(map[string]bool)}
}

// ownsItems reports whether a node type belongs to a single pack. Commands
// are shared between integrations and pack nodes are keyed by directory.
func ownsItems(t content.ContentType) bool {
	return t != content.Command && t != content.Pack
}

// storedOwners collects the owners of stored items in packs other than ids.
func (b *Builder) storedOwners(ctx context.Context, ids []string) (*owners, error) {
	nodes, err := b.graph.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	o := newOwners()
	for _, n := range nodes {
		if !ownsItems(n.ContentType) || n.PackID == "" || slices.Contains(ids, n.PackID) {
			continue
		}
		o.pack[n.NodeID] = n.PackID
		o.stored[n.NodeID] = true
	}
	return o, nil
}

// parsePacks parses ids into one batch. ids must be sorted: an item defined
// by several packs goes to the first of them, in the batch and against
// stored owners alike. It returns the stored nodes the batch takes over.
// Pack-fatal errors are recorded in stats; only context cancellation aborts.
func (b *Builder) parsePacks(ctx context.Context, ids []string, own *owners, stats *Stats) (*graph.Batch, []string, error) {
	batch := &graph.Batch{}
	var displaced []string
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		pb, err := b.ParsePack(ctx, id, stats)
		if err != nil {
			if cgerrors.Is(err, cgerrors.ErrCodePackMetadata) {
				b.logger.Warn("skipping pack", "pack", id, "err", err)
				stats.FailedPacks = append(stats.FailedPacks, id)
				continue
			}
			return nil, nil, err
		}

		dropped := make(map[string]bool)
		for _, n := range pb.Nodes {
			if !ownsItems(n.ContentType) {
				continue
			}
			owner, ok := own.pack[n.NodeID]
			switch {
			case !ok || owner == id:
				own.pack[n.NodeID] = id
			case own.stored[n.NodeID] && id < owner:
				b.collision(stats, n.NodeID, id, owner)
				displaced = append(displaced, n.NodeID)
				own.pack[n.NodeID] = id
				delete(own.stored, n.NodeID)
			default:
				b.collision(stats, n.NodeID, owner, id)
				dropped[n.NodeID] = true
			}
		}
		if len(dropped) > 0 {
			pb = withoutItems(pb, dropped)
		}

		stats.Packs++
		stats.add(pb)
		batch.Nodes = append(batch.Nodes, pb.Nodes...)
		batch.Relationships = append(batch.Relationships, pb.Relationships...)
	}
	return batch, displaced, nil
}

func (b *Builder) collision(stats *Stats, nodeID, owner, dropped string) {
	b.logger.Warn("item defined in several packs", "node", nodeID, "owner", owner, "dropped", dropped)
	stats.Collisions = append(stats.Collisions, Collision{NodeID: nodeID, Owner: owner, Dropped: dropped})
}

// withoutItems removes the dropped items from a pack batch along with every
// relationship they source and the commands only they provided.
func withoutItems(pb *graph.Batch, dropped map[string]bool) *graph.Batch {
	out := &graph.Batch{}
	provided := make(map[string]bool)
	for _, r := range pb.Relationships {
		if dropped[r.SourceID] {
			continue
		}
		out.Relationships = append(out.Relationships, r)
		if r.Type == content.HasCommand {
			provided[r.Target.ObjectID] = true
		}
	}
	for _, n := range pb.Nodes {
		if dropped[n.NodeID] || (n.ContentType == content.Command && !provided[n.ObjectID]) {
			continue
		}
		out.Nodes = append(out.Nodes, n)
	}
	return out
}

func (b *Builder) packDir(id string) string {
	return filepath.Join(b.repoRoot, content.PacksDir, id)
}

// ParsePack parses one pack into a batch: the pack node, its declared pack
// dependencies, every content item with its IN_PACK edge, and the commands
// integrations define. stats may be nil.
//
// A missing or invalid manifest returns a PACK_METADATA error.
func (b *Builder) ParsePack(ctx context.Context, packID string, stats *Stats) (*graph.Batch, error) {
	if stats == nil {
		stats = newStats()
	}
	start := time.Now()
	dir := b.packDir(packID)

	meta, err := content.ReadPackMetadata(dir)
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.ErrCodePackMetadata, err, "pack %s", packID)
	}
	relDir := path.Join(content.PacksDir, packID)
	pack := content.PackNode(packID, relDir, b.source, meta)

	batch := &graph.Batch{Nodes: []content.Node{pack}}
	for _, dep := range sortedKeys(meta.Dependencies) {
		if dep == packID {
			continue
		}
		batch.Relationships = append(batch.Relationships, content.Relationship{
			Type:               content.DependsOn,
			SourceID:           pack.NodeID,
			SourceType:         content.Pack,
			Target:             content.Ref{Type: content.Pack, ObjectID: dep},
			SourceMarketplaces: pack.Marketplaces,
			Mandatory:          meta.Dependencies[dep].Mandatory,
			IsDirect:           true,
		})
	}

	pc := parsers.PackContext{
		PackID:       packID,
		Marketplaces: pack.Marketplaces,
		RepoRoot:     b.repoRoot,
		Source:       b.source,
	}
	items, skipped := 0, 0
	for _, entry := range contentEntries(dir) {
		out := b.registry.Parse(entry, pc)
		if out.Skipped() {
			skipped++
			stats.Skipped[out.Skip.Reason]++
			observability.Pipeline().OnItemSkipped(ctx, string(out.Skip.Reason))
			b.logger.Debug("skipped", "path", out.Skip.Path, "reason", out.Skip.Reason, "detail", out.Skip.Detail)
			continue
		}
		item := out.Item
		items++
		batch.Nodes = append(batch.Nodes, item.Node)
		batch.Nodes = append(batch.Nodes, item.Extra...)
		batch.Relationships = append(batch.Relationships, content.Relationship{
			Type:               content.InPack,
			SourceID:           item.Node.NodeID,
			SourceType:         item.Node.ContentType,
			Target:             content.Ref{Type: content.Pack, ObjectID: packID},
			SourceMarketplaces: item.Node.Marketplaces,
			IsDirect:           true,
		})
		batch.Relationships = append(batch.Relationships, item.Relationships...)
	}
	stats.Items += items

	d := time.Since(start)
	observability.Pipeline().OnPackParsed(ctx, packID, items, skipped, d)
	b.logger.Debug("parsed pack", "pack", packID, "items", items, "skipped", skipped, "took", d)
	return batch, nil
}

// contentEntries returns the candidate item paths of a pack: every entry of
// every content directory, in lexical order.
func contentEntries(packDir string) []string {
	dirs, err := os.ReadDir(packDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, d := range dirs {
		if !d.IsDir() || ignoredDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(packDir, d.Name()))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			out = append(out, filepath.Join(packDir, d.Name(), e.Name()))
		}
	}
	return out
}

// ignoredDirs never hold content items.
var ignoredDirs = map[string]bool{
	"ReleaseNotes": true,
	"TestData":     true,
	"doc_files":    true,
	"doc_imgs":     true,
	"Author_image": true,
}

func (b *Builder) logSummary(msg string, s *Stats) {
	b.logger.Info(msg,
		"packs", s.Packs,
		"items", s.Items,
		"nodes", s.Nodes,
		"relationships", s.Relationships,
		"skipped", s.SkippedTotal(),
	)
	if len(s.FailedPacks) > 0 {
		b.logger.Warn("packs with unreadable metadata", "packs", s.FailedPacks)
	}
	if len(s.RemovedPacks) > 0 {
		b.logger.Info("removed deleted packs", "packs", s.RemovedPacks)
	}
	if len(s.Collisions) > 0 {
		b.logger.Warn("items defined in several packs", "count", len(s.Collisions))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
