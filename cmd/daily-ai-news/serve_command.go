package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cj4yoyo1228/daily-ai-news/internal/server"
	"github.com/cj4yoyo1228/daily-ai-news/internal/watcher"
)

// errSettingsChanged ends serve with a non-zero status so that supervisors
// restarting only on failure still pick up the new settings.
var errSettingsChanged = errors.New("settings changed, restart required")

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addrFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dedup engine over HTTP",
		Long: "Serve the dedup engine over HTTP. The process exits when the settings " +
			"file changes so that a supervisor can restart it with the new settings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addrFlag != "" {
				cfg.ServerAddr = addrFlag
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

			serverCfg := server.Config{
				Deduplicator: filter,
				Embedding:    svc,
				Addr:         cfg.ServerAddr,
				Version:      Version,
				RateLimit:    cfg.RateLimit,
				RateBurst:    cfg.RateBurst,
			}
			store, err := ctx.archive(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				serverCfg.Runs = store
			}

			srv, err := server.New(serverCfg, log.Logger)
			if err != nil {
				return err
			}

			serveCtx, cancel := context.WithCancel(runCtx)
			defer cancel()

			var restart atomic.Bool
			settingsPath := ctx.settingsPath()
			w, err := watcher.New(settingsPath, 0, log.Logger, func(c watcher.Change) {
				restart.Store(true)
				cancel()
			})
			if err != nil {
				log.Warn().Err(err).Msg("Failed to create settings watcher")
			} else if err := w.Start(serveCtx); err != nil {
				log.Warn().Err(err).Str("path", settingsPath).Msg("Failed to start settings watcher")
			} else {
				defer w.Stop()
				log.Info().Str("path", settingsPath).Msg("Settings watcher started")
			}

			if err := srv.Run(serveCtx); err != nil {
				return err
			}
			if restart.Load() {
				log.Warn().Str("path", settingsPath).Msg("Settings changed, exiting for restart")
				return errSettingsChanged
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides settings)")
	return cmd
}
