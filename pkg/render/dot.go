package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/deps"
	"github.com/matzehuels/contentgraph/pkg/digraph"
)

// Format names accepted by the render command.
const (
	FormatDOT = "dot"
	FormatSVG = "svg"
)

// Options configures diagram generation.
type Options struct {
	// Focus keeps only dependencies reachable from this pack.
	Focus string

	// FirstLevelOnly drops dependencies reached through more than one hop.
	FirstLevelOnly bool

	// MandatoryOnly drops optional dependencies.
	MandatoryOnly bool
}

// ToDOT converts pack dependencies to Graphviz DOT. The output is
// deterministic: nodes and edges follow the sorted dependency order.
func ToDOT(packDeps []content.PackDependency, opts Options) string {
	g := deps.PackGraph(filter(packDeps, opts))
	inCycle := make(map[string]bool)
	for _, c := range g.Cycles() {
		for _, id := range c {
			inCycle[id] = true
		}
	}

	var buf bytes.Buffer
	buf.WriteString("digraph packs {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\"];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		attrs := []string{fmt.Sprintf("label=%q", n.ID)}
		switch {
		case inCycle[n.ID]:
			attrs = append(attrs, "fillcolor=\"#f8d0d0\"")
		case n.ID == opts.Focus:
			attrs = append(attrs, "fillcolor=\"#d0e4f8\"", "penwidth=2")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", e.From, e.To, strings.Join(edgeAttrs(e), ", "))
	}
	buf.WriteString("}\n")
	return buf.String()
}

func edgeAttrs(e digraph.Edge) []string {
	var attrs []string
	if !deps.IsMandatory(e) {
		attrs = append(attrs, "style=dashed")
	}
	if d, _ := e.Meta["min_depth"].(int); d > 1 {
		attrs = append(attrs, fmt.Sprintf("label=%q", strconv.Itoa(d)))
	}
	if len(attrs) == 0 {
		attrs = append(attrs, "style=solid")
	}
	return attrs
}

func filter(packDeps []content.PackDependency, opts Options) []content.PackDependency {
	var out []content.PackDependency
	for _, d := range packDeps {
		if opts.MandatoryOnly && !d.Mandatory {
			continue
		}
		if opts.FirstLevelOnly && d.MinDepth > 1 {
			continue
		}
		out = append(out, d)
	}
	if opts.Focus == "" {
		return out
	}

	bySource := make(map[string][]content.PackDependency)
	for _, d := range out {
		bySource[d.Source] = append(bySource[d.Source], d)
	}
	var kept []content.PackDependency
	seen := map[string]bool{opts.Focus: true}
	queue := []string{opts.Focus}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, d := range bySource[id] {
			kept = append(kept, d)
			if !seen[d.Target] {
				seen[d.Target] = true
				queue = append(queue, d.Target)
			}
		}
	}
	content.SortPackDependencies(kept)
	return kept
}

// RenderSVG lays out DOT source with Graphviz and returns the SVG.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's point-sized svg header with one that
// scales in a browser.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	header := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(header))
}
