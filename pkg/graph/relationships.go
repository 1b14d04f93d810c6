package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/deps"
	"github.com/matzehuels/contentgraph/pkg/digraph"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
)

// OutputsFileName is the file RelationshipResult.WriteOutputs writes.
const OutputsFileName = "get_relationships_outputs.json"

const (
	// maxPathsPerRecord caps the example paths kept for one related item.
	maxPathsPerRecord = 100

	// maxWalkPaths bounds path enumeration from one start node.
	maxWalkPaths = 100_000
)

// Query selects relationships around a content item or pack.
type Query struct {
	// Path is a content item file, package directory or pack directory,
	// relative to the repository root or absolute inside it.
	Path string

	// Relationship defaults to USES.
	Relationship content.RelationshipType

	// ContentType filters related items. Defaults to BaseContent (any).
	ContentType content.ContentType

	// Depth is the maximum path length, 1 to 5. Defaults to 1.
	Depth int

	// IncludeTests follows test content when computing DEPENDS_ON paths.
	IncludeTests bool

	// Marketplace restricts the traversal. Empty means all content.
	Marketplace content.Marketplace
}

// withDefaults fills unset fields and validates the rest.
func (q Query) withDefaults() (Query, error) {
	if q.Relationship == "" {
		q.Relationship = content.Uses
	}
	if !q.Relationship.IsValid() {
		return q, cgerrors.New(cgerrors.ErrCodeInvalidRelationship, "unknown relationship %q", q.Relationship)
	}
	if q.ContentType == "" {
		q.ContentType = content.BaseContent
	}
	if !q.ContentType.IsValid() && !q.ContentType.IsPlaceholder() {
		return q, cgerrors.New(cgerrors.ErrCodeInvalidContentType, "unknown content type %q", q.ContentType)
	}
	if q.Depth == 0 {
		q.Depth = 1
	}
	if err := cgerrors.ValidateDepth(q.Depth); err != nil {
		return q, err
	}
	return q, nil
}

// PathEntry is one path between the queried item and a related item, listed
// from source to target. Mandatorily is nil for relationship types without
// the flag.
type PathEntry struct {
	Path        []string `json:"path"`
	Mandatorily *bool    `json:"mandatorily"`
}

// Record is a related item.
type Record struct {
	FilePath    string              `json:"filepath"`
	NodeID      string              `json:"node_id"`
	ContentType content.ContentType `json:"content_type"`
	ObjectID    string              `json:"object_id"`
	MinDepth    int                 `json:"minDepth"`
	Mandatorily *bool               `json:"mandatorily"`
	IsSource    bool                `json:"is_source"`
	Paths       []PathEntry         `json:"paths"`
}

// RelationshipResult holds both directions of a query. Sources are items
// with a path to the queried item; targets are items the queried item has a
// path to.
type RelationshipResult struct {
	Query   Query    `json:"-"`
	Sources []Record `json:"sources"`
	Targets []Record `json:"targets"`
}

// RelationshipsByPath finds the items related to the content at q.Path.
//
// For DEPENDS_ON the traversal runs over pack dependencies computed on the
// fly (with q.IncludeTests), starting from the pack of the queried item. All
// other types walk item-level edges of that type. Every related item gets
// its shortest path length and, for USES and DEPENDS_ON, whether any path
// consists of mandatory edges only.
func (g *Graph) RelationshipsByPath(ctx context.Context, q Query) (*RelationshipResult, error) {
	q, err := q.withDefaults()
	if err != nil {
		return nil, err
	}
	rel, err := g.relativePath(q.Path)
	if err != nil {
		return nil, err
	}

	nodes, rels, err := g.read(ctx)
	if err != nil {
		return nil, err
	}
	inputs := nodesAtPath(nodes, rel)
	if len(inputs) == 0 {
		return nil, cgerrors.New(cgerrors.ErrCodeNotFound, "no content item at %s", rel)
	}

	idx := content.NewIndex(nodes)
	var (
		dg     *digraph.Graph
		starts []string
		label  func(id string) (Record, bool)
	)
	if q.Relationship == content.DependsOn {
		result := deps.Calculate(nodes, rels, deps.Options{IncludeTests: q.IncludeTests, Marketplace: q.Marketplace})
		dg = deps.PackGraph(result.Dependencies)
		for _, n := range inputs {
			if n.PackID != "" && !slices.Contains(starts, n.PackID) {
				starts = append(starts, n.PackID)
			}
		}
		label = func(id string) (Record, bool) {
			n, ok := idx.Node(content.PackNodeID(id))
			if !ok {
				return Record{FilePath: id, NodeID: content.PackNodeID(id), ContentType: content.Pack, ObjectID: id}, true
			}
			return recordFor(n), true
		}
	} else {
		dg = deps.ItemGraph(nodes, rels, deps.GraphOptions{
			Types:        []content.RelationshipType{q.Relationship},
			IncludeTests: true,
			Marketplace:  q.Marketplace,
		})
		for _, n := range inputs {
			starts = append(starts, n.NodeID)
		}
		label = func(id string) (Record, bool) {
			n, ok := idx.Node(id)
			if !ok {
				return Record{}, false
			}
			return recordFor(n), true
		}
	}

	res := &RelationshipResult{Query: q}
	res.Sources = collect(dg, starts, true, q, label)
	res.Targets = collect(dg, starts, false, q, label)
	return res, nil
}

func recordFor(n *content.Node) Record {
	fp := n.FilePath
	if fp == "" {
		fp = n.NodeID
	}
	return Record{FilePath: fp, NodeID: n.NodeID, ContentType: n.ContentType, ObjectID: n.ObjectID}
}

// relativePath maps a query path to the repository-relative, slash separated
// form stored on nodes.
func (g *Graph) relativePath(p string) (string, error) {
	if filepath.IsAbs(p) {
		if g.repoRoot == "" {
			return "", cgerrors.New(cgerrors.ErrCodeInvalidPath, "absolute path %s without a repository root", p)
		}
		r, err := filepath.Rel(g.repoRoot, p)
		if err != nil || strings.HasPrefix(r, "..") {
			return "", cgerrors.New(cgerrors.ErrCodeInvalidPath, "%s is outside the repository", p)
		}
		p = r
	}
	p = filepath.ToSlash(filepath.Clean(p))
	if err := cgerrors.ValidatePath(p); err != nil {
		return "", err
	}
	return p, nil
}

// nodesAtPath returns the nodes defined by the file at p or, when p is a
// package directory, by the definition file inside it.
func nodesAtPath(nodes []content.Node, p string) []*content.Node {
	var exact, inDir []*content.Node
	for i := range nodes {
		n := &nodes[i]
		switch {
		case n.FilePath == p:
			exact = append(exact, n)
		case n.FilePath != "" && n.ContentType != content.Pack && parentDir(n.FilePath) == p:
			inDir = append(inDir, n)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return inDir
}

func parentDir(filePath string) string {
	i := strings.LastIndex(filePath, "/")
	if i < 0 {
		return ""
	}
	return filePath[:i]
}

// collect walks from every start node, in reverse when toward is set, and
// folds the paths into one record per related item.
func collect(dg *digraph.Graph, starts []string, toward bool, q Query, label func(string) (Record, bool)) []Record {
	records := make(map[string]*Record)
	carries := q.Relationship.CarriesMandatory()

	for _, s := range starts {
		walk(dg, s, toward, q.Depth, func(ids []string, edges []digraph.Edge) {
			end := ids[len(ids)-1]
			if slices.Contains(starts, end) {
				return
			}
			rec, ok := records[end]
			if !ok {
				r, known := label(end)
				if !known || !q.ContentType.Matches(r.ContentType) {
					return
				}
				r.IsSource = toward
				r.MinDepth = len(edges)
				rec = &r
				records[end] = rec
			}
			rec.MinDepth = min(rec.MinDepth, len(edges))

			entry := PathEntry{Path: make([]string, 0, len(ids))}
			order := ids
			if toward {
				order = slices.Clone(ids)
				slices.Reverse(order)
			}
			for _, id := range order {
				r, _ := label(id)
				entry.Path = append(entry.Path, r.FilePath)
			}
			if carries {
				m := allMandatory(edges)
				entry.Mandatorily = &m
				if rec.Mandatorily == nil {
					rec.Mandatorily = new(bool)
				}
				*rec.Mandatorily = *rec.Mandatorily || m
			}
			if len(rec.Paths) < maxPathsPerRecord {
				rec.Paths = append(rec.Paths, entry)
			}
		})
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		slices.SortStableFunc(r.Paths, func(a, b PathEntry) int { return len(a.Path) - len(b.Path) })
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b Record) int {
		if c := strings.Compare(a.FilePath, b.FilePath); c != 0 {
			return c
		}
		return strings.Compare(a.NodeID, b.NodeID)
	})
	return out
}

func allMandatory(edges []digraph.Edge) bool {
	for _, e := range edges {
		if !deps.IsMandatory(e) {
			return false
		}
	}
	return true
}

// walk enumerates simple paths of 1 to maxDepth edges from start, following
// edges backwards when reverse is set. ids holds the visited nodes starting
// with start.
func walk(dg *digraph.Graph, start string, reverse bool, maxDepth int, visit func(ids []string, edges []digraph.Edge)) {
	ids := []string{start}
	var edges []digraph.Edge
	budget := maxWalkPaths

	var step func(id string)
	step = func(id string) {
		if len(edges) >= maxDepth || budget <= 0 {
			return
		}
		next := dg.Out(id)
		if reverse {
			next = dg.In(id)
		}
		for _, e := range next {
			other := e.To
			if reverse {
				other = e.From
			}
			if slices.Contains(ids, other) {
				continue
			}
			budget--
			ids = append(ids, other)
			edges = append(edges, e)
			visit(ids, edges)
			step(other)
			ids = ids[:len(ids)-1]
			edges = edges[:len(edges)-1]
			if budget <= 0 {
				return
			}
		}
	}
	step(start)
}

// WriteOutputs writes the result as JSON to OutputsFileName in dir.
func (r *RelationshipResult) WriteOutputs(dir string) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, OutputsFileName), data, 0644)
}

// LogPaths emits every path as an indented trace at debug level.
func (r *RelationshipResult) LogPaths(logger *log.Logger) {
	for _, rec := range append(slices.Clone(r.Sources), r.Targets...) {
		for _, p := range rec.Paths {
			dir := "to"
			if rec.IsSource {
				dir = "from"
			}
			msg := fmt.Sprintf("found a %s path %s %s", r.Query.Relationship, dir, rec.FilePath)
			if p.Mandatorily != nil {
				msg += fmt.Sprintf(" (mandatory: %t)", *p.Mandatorily)
			}
			logger.Debug(msg + "\n" + PathString(r.Query.Relationship, p))
		}
	}
}

// PathString renders a path vertically:
//
//	(Packs/A/Playbooks/a.yml)
//	  |
//	[USES]
//	  ↓
//	(Packs/B/Scripts/b/b.yml)
func PathString(rel content.RelationshipType, p PathEntry) string {
	var b strings.Builder
	label := "[" + string(rel) + "]"
	pad := strings.Repeat(" ", max(len(label)/2-1, 0))
	for i, id := range p.Path {
		if i > 0 {
			fmt.Fprintf(&b, "\n%s|\n%s\n%s↓\n", pad, label, pad)
		}
		b.WriteString("(" + id + ")")
	}
	return b.String()
}
