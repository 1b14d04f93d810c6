package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	cgio "github.com/matzehuels/contentgraph/pkg/io"
)

func (c *CLI) exportCommand() *cobra.Command {
	var (
		marketplace string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the graph to a snapshot archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			path := output
			if path == "" {
				path = filepath.Join(c.cfg.Graph.OutputDir, cgio.FileName(m))
			}
			prog := newProgress(c.Logger)
			if err := g.ExportGraph(ctx, path, m); err != nil {
				return err
			}
			prog.done("exported graph")
			printSuccess("Exported %s snapshot", m)
			printFile(path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&marketplace, "marketplace", "m", "", "marketplace to export (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default: <output dir>/<marketplace>.zip)")
	return cmd
}

func (c *CLI) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive>",
		Short: "Replace the stored graph with a snapshot archive",
		Long: `Import clears the store and loads the archive. A corrupt or incompatible
archive leaves the store empty; run create to rebuild it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			g, err := c.openGraph(ctx)
			if err != nil {
				return err
			}
			defer g.Close()

			if !g.ImportGraph(ctx, args[0]) {
				return cgerrors.New(cgerrors.ErrCodeSnapshot, "could not import %s", args[0])
			}
			st, err := g.Stats(ctx)
			if err != nil {
				return err
			}
			printSuccess("Imported %s", args[0])
			printKeyValue("nodes", fmt.Sprint(st.Nodes))
			printKeyValue("relationships", fmt.Sprint(st.Relationships))
			printKeyValue("packs", fmt.Sprint(st.Packs))
			printKeyValue("dependencies", fmt.Sprint(st.PackDependencies))
			printKeyValue("by type", countsByType(st.ByType))
			if c.cfg.Store.Backend == "memory" {
				printNextStep("The memory store is discarded on exit; persist it with", appName+" --store badger import "+args[0])
			}
			return nil
		},
	}
}

func (c *CLI) mergeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <local> <remote> <output>",
		Short: "Merge a local snapshot over a shared one",
		Long: `Merge combines two snapshot archives. Content of packs present in the local
archive replaces the remote content of those packs; everything else from the
remote archive is kept. Both archives must target the same marketplace.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cgio.MergeFiles(args[0], args[1], args[2]); err != nil {
				return cgerrors.Wrap(cgerrors.ErrCodeSnapshot, err, "merge snapshots")
			}
			printSuccess("Merged %s over %s", args[0], args[1])
			printFile(args[2])
			return nil
		},
	}
}
