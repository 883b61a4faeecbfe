package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"kyb/internal/platform/httpserver"
	"kyb/internal/platform/postgres"
)

var (
	relayOnce        bool
	relayMetricsAddr string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Publish outbox events to Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()

		reg := newRegistry()
		r, client, err := newRelay(ctx, cfg, db, reg, log)
		if err != nil {
			return err
		}
		defer client.Close()

		if relayOnce {
			stats, err := r.RunOnce(ctx)
			log.InfoContext(ctx, "outbox relay cycle complete",
				"claimed", stats.Claimed,
				"published", stats.Published,
				"failed", stats.Failed,
				"deferred", stats.Deferred,
			)
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return r.Run(gctx) })
		if relayMetricsAddr != "" {
			srv := httpserver.New(relayMetricsAddr, metricsMux(reg))
			g.Go(func() error {
				return httpserver.Serve(gctx, srv, cfg.HTTP.ShutdownTimeout, log)
			})
		}
		return g.Wait()
	},
}

func init() {
	relayCmd.Flags().BoolVar(&relayOnce, "once", false, "run a single relay cycle and exit")
	relayCmd.Flags().StringVar(&relayMetricsAddr, "metrics-addr", ":9101", "address serving /metrics; empty disables it")
}
