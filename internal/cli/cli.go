// Package cli implements the contentgraph command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/contentgraph/pkg/buildinfo"
	"github.com/matzehuels/contentgraph/pkg/builder"
	"github.com/matzehuels/contentgraph/pkg/cache"
	"github.com/matzehuels/contentgraph/pkg/config"
	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	"github.com/matzehuels/contentgraph/pkg/gitutil"
	"github.com/matzehuels/contentgraph/pkg/graph"
	cgio "github.com/matzehuels/contentgraph/pkg/io"
	"github.com/matzehuels/contentgraph/pkg/observability/prom"
	"github.com/matzehuels/contentgraph/pkg/pipeline"
	"github.com/matzehuels/contentgraph/pkg/remote"
	"github.com/matzehuels/contentgraph/pkg/store"
	"github.com/matzehuels/contentgraph/pkg/store/badger"
	"github.com/matzehuels/contentgraph/pkg/store/neo4j"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "contentgraph"

	// gitTimeout bounds every git invocation.
	gitTimeout = 2 * time.Minute
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	flags   globalFlags
	cfg     *config.Config
	metrics *prom.Metrics
}

type globalFlags struct {
	configPath  string
	repo        string
	store       string
	metricsFile string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "contentgraph builds and queries the content dependency graph",
		Long: `contentgraph parses a content repository into a graph of content items and
their relationships, derives pack-to-pack dependencies, and keeps the graph
current through snapshots and incremental updates.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return c.setup() },
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return c.writeMetrics()
		},
	}
	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "config file (default: <repo>/"+config.FileName+")")
	pf.StringVar(&c.flags.repo, "repo", "", "content repository root (default: current directory)")
	pf.StringVar(&c.flags.store, "store", "", "graph store backend: memory, badger or neo4j")
	pf.StringVar(&c.flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(c.createCommand())
	root.AddCommand(c.updateCommand())
	root.AddCommand(c.relationshipsCommand())
	root.AddCommand(c.dependenciesCommand())
	root.AddCommand(c.danglingCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.importCommand())
	root.AddCommand(c.mergeCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup loads the configuration and registers metrics.
func (c *CLI) setup() error {
	repo := c.flags.repo
	if repo == "" {
		repo = "."
	}
	cfg, err := config.Load(c.flags.configPath, repo)
	if err != nil {
		return err
	}
	if c.flags.repo != "" {
		cfg.Repository.Path = c.flags.repo
	}
	if c.flags.store != "" {
		cfg.Store.Backend = c.flags.store
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if abs, err := filepath.Abs(cfg.Repository.Path); err == nil {
		cfg.Repository.Path = abs
	}
	c.cfg = cfg
	if cfg.File != "" {
		c.Logger.Debug("loaded config", "file", cfg.File)
	}

	c.metrics = prom.New()
	c.metrics.Register()
	return nil
}

func (c *CLI) writeMetrics() error {
	if c.flags.metricsFile == "" || c.metrics == nil {
		return nil
	}
	if err := c.metrics.WriteToTextfile(c.flags.metricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// =============================================================================
// Factories
// =============================================================================

// openStore opens the configured backing store.
func (c *CLI) openStore(ctx context.Context) (store.Store, error) {
	s := c.cfg.Store
	switch s.Backend {
	case "badger":
		return badger.Open(badger.Config{
			Path:       s.Badger.Path,
			InMemory:   s.Badger.InMemory,
			SyncWrites: s.Badger.SyncWrites,
			Logger:     c.Logger,
		})
	case "neo4j":
		return neo4j.Open(ctx, neo4j.Config{
			URI:      s.Neo4j.URI,
			User:     s.Neo4j.User,
			Password: s.Neo4j.Password,
			Database: s.Neo4j.Database,
		})
	default:
		return store.NewMemory(), nil
	}
}

// openGraph opens the graph for the configured repository. The caller must
// Close it.
func (c *CLI) openGraph(ctx context.Context) (*graph.Graph, error) {
	s, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}
	g, err := graph.Open(s, graph.Options{
		RepoRoot:  c.cfg.Repository.Path,
		ImportDir: c.cfg.Graph.ImportDir,
		Logger:    c.Logger,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return g, nil
}

// loadGraph opens the graph and makes sure it holds content: an empty store
// is filled from the last exported snapshot for m, or built from scratch.
// An empty m looks for the snapshot of the configured marketplace.
func (c *CLI) loadGraph(ctx context.Context, m content.Marketplace) (*graph.Graph, error) {
	g, err := c.openGraph(ctx)
	if err != nil {
		return nil, err
	}
	st, err := g.Stats(ctx)
	if err != nil {
		g.Close()
		return nil, err
	}
	if st.Nodes > 0 {
		return g, nil
	}

	if m == "" {
		m = c.cfg.Marketplace()
	}
	snapshot := filepath.Join(c.cfg.Graph.OutputDir, cgio.FileName(m))
	if _, err := os.Stat(snapshot); err == nil && g.ImportGraph(ctx, snapshot) {
		return g, nil
	}
	c.Logger.Info("graph is empty, building it", "repo", c.cfg.Repository.Path)
	runner := c.newRunner(g)
	if _, err := runner.CreateContentGraph(ctx, pipeline.CreateOptions{
		Marketplace:  m,
		Dependencies: true,
		MaxDepth:     c.cfg.Graph.MaxDepth,
		IncludeTests: c.cfg.Graph.IncludeTests,
	}); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func (c *CLI) newBuilder(g *graph.Graph) *builder.Builder {
	return builder.New(g, builder.Options{
		RepoRoot: c.cfg.Repository.Path,
		Source:   c.cfg.Repository.Source,
		Logger:   c.Logger,
	})
}

// newRunner wires the builder and git reader for g. Outside a git work tree
// no commit is recorded and --use-git is rejected.
func (c *CLI) newRunner(g *graph.Graph) *pipeline.Runner {
	r := pipeline.NewRunner(g, c.newBuilder(g), c.Logger)
	if repo, err := gitutil.Open(context.Background(), c.cfg.Repository.Path, gitTimeout); err == nil {
		r.Git = repo
	} else {
		c.Logger.Debug("not a git repository", "repo", c.cfg.Repository.Path, "err", err)
	}
	return r
}

// newRemote builds the configured remote snapshot store, wrapped in the
// snapshot cache. It returns nil when no remote is configured.
func (c *CLI) newRemote(ctx context.Context) (remote.Store, func(), error) {
	rc := c.cfg.Remote
	var (
		rs      remote.Store
		cleanup = func() {}
	)
	switch rc.Kind {
	case "gcs":
		gcs, err := remote.NewGCSStore(ctx, remote.GCSOptions{
			Bucket:          rc.Bucket,
			Prefix:          rc.Prefix,
			CredentialsFile: rc.CredentialsFile,
		})
		if err != nil {
			return nil, cleanup, err
		}
		rs, cleanup = gcs, func() { _ = gcs.Close() }
	case "http":
		h, err := remote.NewHTTPStore(remote.HTTPOptions{BaseURL: rc.BaseURL, Token: rc.Token})
		if err != nil {
			return nil, cleanup, err
		}
		rs = h
	case "dir":
		rs = remote.NewDirStore(rc.Dir, rc.Prefix)
	default:
		return nil, cleanup, nil
	}

	sc, err := c.newCache(ctx)
	if err != nil {
		c.Logger.Warn("snapshot cache disabled", "err", err)
		return rs, cleanup, nil
	}
	closeRemote := cleanup
	return remote.NewCached(rs, sc, c.cfg.Cache.TTL, c.Logger), func() {
		_ = sc.Close()
		closeRemote()
	}, nil
}

// newCache builds the configured snapshot cache.
func (c *CLI) newCache(ctx context.Context) (cache.Cache, error) {
	cc := c.cfg.Cache
	switch cc.Backend {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{URL: cc.Redis.URL, ConnectTimeout: cc.Redis.ConnectTimeout})
		if err != nil {
			return cache.NewNullCache(), err
		}
		return cache.Scoped(rc, appName), nil
	case "none":
		return cache.NewNullCache(), nil
	default:
		return cache.NewFileCache(cc.Dir)
	}
}

// marketplace resolves a --marketplace flag against the configured default.
func (c *CLI) marketplace(flag string) (content.Marketplace, error) {
	if flag == "" {
		return c.cfg.Marketplace(), nil
	}
	m, err := content.ParseMarketplace(flag)
	if err != nil {
		return "", cgerrors.Wrap(cgerrors.ErrCodeInvalidMarketplace, err, "marketplace")
	}
	return m, nil
}
