package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"governance-agent/internal/api"

	"github.com/spf13/cobra"
)

func serveCommand() *cobra.Command {
	var noReconciler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the in-process vote reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg, os.Stderr)
			log.Infow("starting", "config", cfg.DebugString())

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			srv := api.NewServer(api.Deps{
				Users:      a.users,
				Votes:      a.votes,
				Proposals:  a.proposals,
				Executor:   a.executor,
				Replies:    a.replies,
				Reconciler: a.tracker,
				Digest:     a.digest,
				CronSecret: cfg.CronSecret,
			}, log)
			if cfg.CronSecret == "" {
				log.Warnw("CRON_SECRET not set, cron endpoints are disabled")
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(cfg.ListenAddr) }()

			reconcileDone := make(chan struct{})
			if noReconciler {
				close(reconcileDone)
			} else {
				go func() {
					defer close(reconcileDone)
					_ = a.tracker.Run(ctx)
				}()
			}

			select {
			case <-ctx.Done():
				err = nil
			case err = <-errCh:
				cancel()
			}
			log.Infow("shutting down...")

			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				log.Warnw("http shutdown", "err", shutdownErr)
			}
			<-reconcileDone
			return err
		},
	}
	cmd.Flags().BoolVar(&noReconciler, "no-reconciler", false, "rely on the cron endpoint instead of the in-process ticker")
	return cmd
}
