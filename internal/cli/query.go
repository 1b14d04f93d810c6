package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	"github.com/matzehuels/contentgraph/pkg/graph"
)

func (c *CLI) relationshipsCommand() *cobra.Command {
	var (
		relationship string
		contentType  string
		depth        int
		includeTests bool
		output       string
		marketplace  string
	)
	cmd := &cobra.Command{
		Use:   "relationships <path>",
		Short: "Show the content related to an item or pack",
		Long: `Relationships lists every item with a path to the content at <path> (sources)
and every item the content has a path to (targets), with the shortest path
length and whether a path of mandatory edges exists.`,
		Example: `  contentgraph relationships Packs/Phishing/Playbooks/playbook-Phishing.yml
  contentgraph relationships Packs/Core --relationship DEPENDS_ON --depth 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rel, err := content.ParseRelationshipType(relationship)
			if err != nil {
				return cgerrors.Wrap(cgerrors.ErrCodeInvalidRelationship, err, "relationship")
			}
			ct, err := content.ParseContentType(contentType)
			if err != nil {
				return cgerrors.Wrap(cgerrors.ErrCodeInvalidContentType, err, "content type")
			}
			m, err := c.queryMarketplace(marketplace)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			g, err := c.loadGraph(ctx, m)
			if err != nil {
				return err
			}
			defer g.Close()

			res, err := g.RelationshipsByPath(ctx, graph.Query{
				Path:         args[0],
				Relationship: rel,
				ContentType:  ct,
				Depth:        depth,
				IncludeTests: includeTests,
				Marketplace:  m,
			})
			if err != nil {
				return err
			}
			res.LogPaths(c.Logger)

			headers, rows := recordRows(res.Sources)
			printTable(fmt.Sprintf("Sources (%d)", len(res.Sources)), headers, rows)
			headers, rows = recordRows(res.Targets)
			printTable(fmt.Sprintf("Targets (%d)", len(res.Targets)), headers, rows)

			if output != "" {
				if err := res.WriteOutputs(output); err != nil {
					return fmt.Errorf("write outputs: %w", err)
				}
				printFile(output + "/" + graph.OutputsFileName)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&relationship, "relationship", "r", string(content.Uses), "relationship type to follow")
	fl.StringVarP(&contentType, "content-type", "t", string(content.BaseContent), "only list items of this type")
	fl.IntVarP(&depth, "depth", "d", 1, "maximum path length (1-5)")
	fl.BoolVar(&includeTests, "include-tests", false, "follow test content for DEPENDS_ON")
	fl.StringVarP(&output, "output", "o", "", "also write the result as JSON into this directory")
	fl.StringVarP(&marketplace, "marketplace", "m", "", "restrict to content shipping to this marketplace")
	return cmd
}

func (c *CLI) dependenciesCommand() *cobra.Command {
	var (
		allLevels     bool
		mandatoryOnly bool
	)
	cmd := &cobra.Command{
		Use:   "dependencies <pack>",
		Short: "List the pack dependencies of a pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			g, err := c.loadGraph(ctx, c.cfg.Marketplace())
			if err != nil {
				return err
			}
			defer g.Close()

			packDeps, err := g.PackDependencies(ctx, args[0], graph.FilterOptions{
				AllLevels:     allLevels,
				MandatoryOnly: mandatoryOnly,
			})
			if err != nil {
				return err
			}
			content.SortPackDependencies(packDeps)
			printTable(fmt.Sprintf("Dependencies of %s (%d)", args[0], len(packDeps)),
				[]string{"Pack", "Depends On", "Min Depth", "Mandatory"}, dependencyRows(packDeps))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&allLevels, "all-levels", "a", false, "include transitive dependencies")
	cmd.Flags().BoolVar(&mandatoryOnly, "mandatory-only", false, "drop optional dependencies")
	return cmd
}

func (c *CLI) danglingCommand() *cobra.Command {
	var marketplace string
	cmd := &cobra.Command{
		Use:   "dangling",
		Short: "List references to content missing from the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := c.queryMarketplace(marketplace)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			g, err := c.loadGraph(ctx, m)
			if err != nil {
				return err
			}
			defer g.Close()

			refs, err := g.DanglingReferences(ctx, m)
			if err != nil {
				return err
			}
			printTable(fmt.Sprintf("Dangling references (%d)", len(refs)),
				[]string{"Source", "Relationship", "Target", "Mandatory"}, danglingRows(refs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&marketplace, "marketplace", "m", "", "restrict to content shipping to this marketplace")
	return cmd
}

// queryMarketplace resolves a query's marketplace flag. An unset flag
// queries all content.
func (c *CLI) queryMarketplace(flag string) (content.Marketplace, error) {
	if flag == "" {
		return "", nil
	}
	return c.marketplace(flag)
}
