package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cj4yoyo1228/daily-ai-news/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one briefing batch end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := ctx.embeddingService(runCtx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			filter, err := ctx.filter(svc, cfg)
			if err != nil {
				return err
			}
			collectors, err := ctx.collectors(cfg)
			if err != nil {
				return err
			}

			runnerCfg := pipeline.Config{
				Collectors:   collectors,
				Deduplicator: filter,
				Scorer:       ctx.scorer(cfg),
				Broadcaster:  ctx.broadcaster(cfg),
				TopN:         cfg.TopN,
				DryRun:       dryRun,
			}
			store, err := ctx.archive(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				runnerCfg.Archive = store
			}

			runner, err := pipeline.New(runnerCfg, log.Logger)
			if err != nil {
				return err
			}

			res, err := runner.Run(runCtx)
			if res != nil && res.Message != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Format the briefing without broadcasting it")
	return cmd
}
