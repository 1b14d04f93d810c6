// Package render draws the pack dependency graph.
//
// [ToDOT] turns derived pack dependencies into Graphviz DOT source and
// [RenderSVG] lays it out in process with [github.com/goccy/go-graphviz]:
//
//	dot := render.ToDOT(deps, render.Options{Focus: "Phishing"})
//	svg, err := render.RenderSVG(ctx, dot)
//
// Mandatory dependencies are drawn solid, optional ones dashed, and packs
// taking part in a dependency cycle are filled red. Edge labels carry the
// minimum item-level depth when it is above one.
package render
