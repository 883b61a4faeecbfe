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
	schedulerOnce        bool
	schedulerDryRun      bool
	schedulerMetricsAddr string
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Trigger periodic compliance refreshes for due cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		if schedulerDryRun {
			cfg.Scheduler.DryRun = true
		}
		ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()

		reg := newRegistry()
		s, rdb, err := newScheduler(ctx, cfg, db, reg, log)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		if schedulerOnce {
			res, err := s.RunOnce(ctx)
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "compliance refresh cycle complete",
				"skipped", res.Skipped,
				"dry_run", res.DryRun,
				"selected", res.Selected,
				"triggered", res.Triggered,
				"failed", res.Failed,
			)
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return s.Run(gctx) })
		if schedulerMetricsAddr != "" {
			srv := httpserver.New(schedulerMetricsAddr, metricsMux(reg))
			g.Go(func() error {
				return httpserver.Serve(gctx, srv, cfg.HTTP.ShutdownTimeout, log)
			})
		}
		return g.Wait()
	},
}

func init() {
	schedulerCmd.Flags().BoolVar(&schedulerOnce, "once", false, "run a single cycle and exit")
	schedulerCmd.Flags().BoolVar(&schedulerDryRun, "dry-run", false, "log due cases without triggering refreshes")
	schedulerCmd.Flags().StringVar(&schedulerMetricsAddr, "metrics-addr", ":9102", "address serving /metrics; empty disables it")
}
