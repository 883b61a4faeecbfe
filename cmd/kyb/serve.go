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
	serveWithRelay     bool
	serveWithScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, optionally with the relay and scheduler in-process",
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
		g, gctx := errgroup.WithContext(ctx)

		srv := httpserver.New(cfg.HTTP.Addr, newAPI(cfg, db, reg, log))
		g.Go(func() error {
			return httpserver.Serve(gctx, srv, cfg.HTTP.ShutdownTimeout, log)
		})

		if serveWithRelay {
			r, client, err := newRelay(ctx, cfg, db, reg, log)
			if err != nil {
				return err
			}
			defer client.Close()
			g.Go(func() error { return r.Run(gctx) })
		}

		if serveWithScheduler && cfg.Scheduler.Enabled {
			s, rdb, err := newScheduler(ctx, cfg, db, reg, log)
			if err != nil {
				return err
			}
			defer func() { _ = rdb.Close() }()
			g.Go(func() error { return s.Run(gctx) })
		}

		err = g.Wait()
		log.InfoContext(ctx, "kyb stopped")
		return err
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithRelay, "with-relay", false, "run the outbox relay in this process")
	serveCmd.Flags().BoolVar(&serveWithScheduler, "with-scheduler", false, "run the compliance scheduler in this process")
}
