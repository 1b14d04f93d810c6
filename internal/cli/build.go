package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/contentgraph/pkg/graph"
	"github.com/matzehuels/contentgraph/pkg/pipeline"
)

// buildFlags are shared by create and update.
type buildFlags struct {
	marketplace    string
	noDependencies bool
	output         string
	includeTests   bool
	upload         bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.marketplace, "marketplace", "m", "", "marketplace to build for: xsoar or marketplacev2 (default from config)")
	fl.BoolVar(&f.noDependencies, "no-dependencies", false, "skip pack dependency calculation")
	fl.StringVarP(&f.output, "output", "o", "", "directory for the exported snapshot (default from config)")
	fl.BoolVar(&f.includeTests, "include-tests", false, "follow test content when calculating dependencies")
	fl.BoolVar(&f.upload, "upload", false, "publish the exported snapshot to the configured remote")
}

func (c *CLI) createCommand() *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Build the content graph from every pack in the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := c.marketplace(flags.marketplace)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			g, err := c.openGraph(ctx)
			if err != nil {
				return err
			}
			defer g.Close()

			runner, cleanup, err := c.runnerWithRemote(ctx, g, flags.upload)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := runner.CreateContentGraph(ctx, pipeline.CreateOptions{
				Marketplace:  m,
				Dependencies: !flags.noDependencies,
				MaxDepth:     c.cfg.Graph.MaxDepth,
				IncludeTests: flags.includeTests || c.cfg.Graph.IncludeTests,
				OutputDir:    c.outputDir(flags.output),
				Upload:       flags.upload,
			})
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *CLI) updateCommand() *cobra.Command {
	var (
		flags        buildFlags
		useGit       bool
		commit       string
		importedPath string
		useCurrent   bool
		packs        []string
		external     bool
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the content graph incrementally",
		Long: `Update imports the last published snapshot and reparses only the packs that
changed. When no snapshot can be imported, or the incremental update fails,
the graph is rebuilt from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := c.marketplace(flags.marketplace)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			g, err := c.openGraph(ctx)
			if err != nil {
				return err
			}
			defer g.Close()

			runner, cleanup, err := c.runnerWithRemote(ctx, g, true)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := runner.UpdateContentGraph(ctx, pipeline.UpdateOptions{
				Marketplace:  m,
				UseGit:       useGit,
				Commit:       commit,
				ImportedPath: importedPath,
				UseCurrent:   useCurrent,
				Packs:        packs,
				External:     external || c.cfg.Repository.External,
				Dependencies: !flags.noDependencies,
				MaxDepth:     c.cfg.Graph.MaxDepth,
				IncludeTests: flags.includeTests || c.cfg.Graph.IncludeTests,
				OutputDir:    c.outputDir(flags.output),
				Upload:       flags.upload,
			})
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
	flags.register(cmd)
	fl := cmd.Flags()
	fl.BoolVar(&useGit, "use-git", false, "reparse the packs changed since the graph's commit")
	fl.StringVar(&commit, "commit", "", "compare against this commit instead of the graph's")
	fl.StringVar(&importedPath, "imported-path", "", "import this snapshot instead of downloading one")
	fl.BoolVar(&useCurrent, "use-current", false, "update the graph already in the store")
	fl.StringSliceVarP(&packs, "packs", "p", nil, "packs to reparse")
	fl.BoolVar(&external, "external", false, "merge the shared snapshot with the local packs")
	cmd.MarkFlagsMutuallyExclusive("imported-path", "use-current")
	return cmd
}

// runnerWithRemote creates a runner and attaches the configured remote. A
// remote is required only when it will be written to.
func (c *CLI) runnerWithRemote(ctx context.Context, g *graph.Graph, required bool) (*pipeline.Runner, func(), error) {
	runner := c.newRunner(g)
	rs, cleanup, err := c.newRemote(ctx)
	if err != nil {
		if required {
			return nil, cleanup, err
		}
		c.Logger.Warn("remote disabled", "err", err)
		return runner, cleanup, nil
	}
	if rs != nil {
		runner.Remote = rs
	}
	return runner, cleanup, nil
}

func (c *CLI) outputDir(flag string) string {
	if flag != "" {
		return flag
	}
	return c.cfg.Graph.OutputDir
}

func printResult(res *pipeline.Result) {
	states := make([]string, 0, len(res.Transitions)+1)
	states = append(states, string(pipeline.StateStart))
	for _, t := range res.Transitions {
		states = append(states, string(t.To))
	}

	printSuccess("%s finished in %s", res.Mode, res.Duration.Round(time.Millisecond))
	printKeyValue("run", res.RunID)
	printKeyValue("path", strings.Join(states, " → "))
	if res.Build != nil {
		printKeyValue("packs", fmt.Sprintf("%d parsed, %d failed", res.Build.Packs, len(res.Build.FailedPacks)))
		if n := res.Build.SkippedTotal(); n > 0 {
			printKeyValue("skipped", fmt.Sprint(n))
		}
	}
	if len(res.UpdatedPacks) > 0 {
		printKeyValue("updated", strings.Join(res.UpdatedPacks, ", "))
	}
	printKeyValue("nodes", fmt.Sprint(res.Stats.Nodes))
	printKeyValue("relationships", fmt.Sprint(res.Stats.Relationships))
	printKeyValue("dependencies", fmt.Sprint(res.Dependencies))
	if res.Commit != "" {
		printKeyValue("commit", res.Commit)
	}
	for _, cycle := range res.Cycles {
		printWarning("dependency cycle: %s", strings.Join(cycle, " → "))
	}
	if res.Build != nil {
		for _, p := range res.Build.FailedPacks {
			printWarning("pack %s failed to parse", p)
		}
		for _, c := range res.Build.Collisions {
			printWarning("%s is defined in %s and %s; kept %s", c.NodeID, c.Owner, c.Dropped, c.Owner)
		}
	}
	if res.Output != "" {
		printFile(res.Output)
	}
}
