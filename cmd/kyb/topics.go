package main

import (
	"github.com/spf13/cobra"

	"kyb/internal/platform/kafka"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Create every topic the relay routes to",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		client, err := kafka.NewClient(cfg.Kafka)
		if err != nil {
			return err
		}
		defer client.Close()

		return kafka.EnsureTopics(ctx, client, cfg.Kafka, newRouter(cfg).Topics(), log)
	},
}
