package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/mcp"
	"github.com/dshills/docindex-mcp/internal/metrics"
)

var flagMetricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server on stdio. Stdout carries protocol traffic only and
logs go to stderr.

With metrics enabled in the config, or --metrics-addr set, Prometheus
metrics are served over HTTP at /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := ""
		if a.cfg.Metrics.Enabled {
			addr = a.cfg.Metrics.Addr
		}
		if flagMetricsAddr != "" {
			addr = flagMetricsAddr
		}
		return a.serve(ctx, stop, addr)
	},
}

// serve runs the MCP server and, when addr is set, the metrics server.
// Both stop when stdin closes or ctx is cancelled.
func (a *app) serve(ctx context.Context, stop context.CancelFunc, metricsAddr string) error {
	srv := mcp.NewServer(a.store, a.indexer, a.searcher, a.tracker,
		mcp.WithLogger(logger.WithComponent("mcp")),
		mcp.WithDefaultExtensions(a.cfg.Index.Extensions),
	)

	g, gctx := errgroup.WithContext(ctx)
	if metricsAddr != "" {
		ms, err := metrics.Listen(metricsAddr, a.registry, logger.WithComponent("metrics"))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return ms.Serve(gctx)
		})
	}

	g.Go(func() error {
		a.logger.Info("MCP server ready, listening on stdio", "version", version)
		err := srv.Serve(gctx)
		stop()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
	rootCmd.AddCommand(serveCmd)
}
