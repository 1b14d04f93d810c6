package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	"github.com/matzehuels/contentgraph/pkg/render"
)

func (c *CLI) renderCommand() *cobra.Command {
	var (
		format        string
		output        string
		focus         string
		firstLevel    bool
		mandatoryOnly bool
		marketplace   string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Draw the pack dependency graph",
		Example: `  contentgraph render --format svg -o deps.svg
  contentgraph render --focus Phishing --mandatory-only | dot -Tpng > phishing.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != render.FormatDOT && format != render.FormatSVG {
				return cgerrors.New(cgerrors.ErrCodeInvalidInput, "unknown format %q (want %s or %s)", format, render.FormatDOT, render.FormatSVG)
			}
			m, err := c.marketplace(marketplace)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			g, err := c.loadGraph(ctx, m)
			if err != nil {
				return err
			}
			defer g.Close()

			snap, err := g.Snapshot(ctx, m)
			if err != nil {
				return err
			}
			if focus != "" && !hasPack(snap.Nodes, focus) {
				return cgerrors.New(cgerrors.ErrCodePackNotFound, "pack %q is not in the graph", focus)
			}
			dot := render.ToDOT(snap.PackDependencies, render.Options{
				Focus:          focus,
				FirstLevelOnly: firstLevel,
				MandatoryOnly:  mandatoryOnly,
			})

			data := []byte(dot)
			if format == render.FormatSVG {
				prog := newProgress(c.Logger)
				if data, err = render.RenderSVG(ctx, dot); err != nil {
					return err
				}
				prog.done("rendered svg")
			}

			if output == "" {
				_, err := stdout.Write(data)
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			printSuccess("Rendered %s", format)
			printFile(output)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&format, "format", "f", render.FormatDOT, "output format: dot or svg")
	fl.StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	fl.StringVar(&focus, "focus", "", "only draw dependencies reachable from this pack")
	fl.BoolVar(&firstLevel, "first-level", false, "drop dependencies reached through more than one hop")
	fl.BoolVar(&mandatoryOnly, "mandatory-only", false, "drop optional dependencies")
	fl.StringVarP(&marketplace, "marketplace", "m", "", "marketplace to draw (default from config)")
	return cmd
}

func hasPack(nodes []content.Node, packID string) bool {
	id := content.PackNodeID(packID)
	return slices.ContainsFunc(nodes, func(n content.Node) bool { return n.NodeID == id })
}
