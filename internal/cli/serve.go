package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/contentgraph/internal/server"
)

func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr        string
		marketplace string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only graph queries over HTTP",
		Long: `Serve loads the graph and answers relationship, dependency and dangling
reference queries as JSON until interrupted. Prometheus metrics are served
at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := c.marketplace(marketplace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = c.cfg.Server.Addr
			}
			ctx := cmd.Context()
			g, err := c.loadGraph(ctx, m)
			if err != nil {
				return err
			}
			defer g.Close()

			srv := server.New(g, server.Options{
				Marketplace: m,
				Metrics:     c.metrics.Handler(),
				Logger:      c.Logger,
			})
			printInfo("Serving on http://%s", addr)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVarP(&marketplace, "marketplace", "m", "", "default marketplace for queries (default from config)")
	return cmd
}
