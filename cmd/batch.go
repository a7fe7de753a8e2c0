package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Re-resolve stored leads that still have no phone",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		limit := batchLimit
		if limit <= 0 {
			limit = cfg.Pipeline.BatchLimit
		}

		summary, err := env.Pipeline.RunBatch(ctx, limit)
		if err != nil {
			return err
		}
		zap.L().Info("batch finished",
			zap.Int("total", summary.Total),
			zap.Int("resolved", summary.Resolved),
			zap.Int("alerted", summary.Alerted),
			zap.Int("failed", summary.Failed),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of leads to process (default from config)")
	rootCmd.AddCommand(batchCmd)
}
