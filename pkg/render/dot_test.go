package render

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/contentgraph/pkg/content"
)

var sample = []content.PackDependency{
	{Source: "A", Target: "B", Mandatory: true, MinDepth: 1},
	{Source: "B", Target: "A", Mandatory: false, MinDepth: 1},
	{Source: "C", Target: "D", Mandatory: true, MinDepth: 3},
	{Source: "Phishing", Target: "Core", Mandatory: true, MinDepth: 1},
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(sample, Options{})

	for _, want := range []string{
		`"A" -> "B" [style=solid];`,
		`"B" -> "A" [style=dashed];`,
		`"C" -> "D" [label="3"];`,
		`"Phishing" -> "Core" [style=solid];`,
		`"A" [label="A", fillcolor="#f8d0d0"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %s\n%s", want, dot)
		}
	}
	if strings.Contains(dot, `"Core" [label="Core", fillcolor="#f8d0d0"]`) {
		t.Error("Core is not part of a cycle")
	}
	if ToDOT(sample, Options{}) != dot {
		t.Error("output is not deterministic")
	}
}

func TestToDOTFilters(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    []string
		wantNot []string
	}{
		{"mandatory only", Options{MandatoryOnly: true}, []string{`"A" -> "B"`}, []string{`"B" -> "A"`}},
		{"first level", Options{FirstLevelOnly: true}, []string{`"A" -> "B"`}, []string{`"C" -> "D"`}},
		{"focus", Options{Focus: "Phishing"}, []string{`"Phishing" -> "Core"`, `penwidth=2`}, []string{`"A"`, `"C"`}},
		{"focus follows transitive", Options{Focus: "B"}, []string{`"B" -> "A"`, `"A" -> "B"`}, []string{`"Core"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dot := ToDOT(sample, tt.opts)
			for _, s := range tt.want {
				if !strings.Contains(dot, s) {
					t.Errorf("missing %s in\n%s", s, dot)
				}
			}
			for _, s := range tt.wantNot {
				if strings.Contains(dot, s) {
					t.Errorf("unexpected %s in\n%s", s, dot)
				}
			}
		})
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="62pt" height="44pt" viewBox="0.00 0.00 62.00 44.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	got := string(normalizeViewBox(in))
	want := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 62.00 44.00" width="62" height="44"><g/></svg>`
	if got != want {
		t.Errorf("got %s", got)
	}
	if plain := []byte("<svg><g/></svg>"); string(normalizeViewBox(plain)) != string(plain) {
		t.Error("svg without viewBox must be unchanged")
	}
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), ToDOT(sample, Options{}))
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	if !strings.Contains(string(svg), "<svg") || !strings.Contains(string(svg), "Phishing") {
		t.Errorf("unexpected SVG output: %.200s", svg)
	}
}
