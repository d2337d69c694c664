package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	dbpkg "governance-agent/internal/db"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass over pending votes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg, os.Stderr)
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			res, err := a.tracker.ReconcilePendingVotes(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(res); err != nil {
				return err
			}
			if res.Errors > 0 {
				return xerrors.Errorf("%d votes could not be reconciled", res.Errors)
			}
			return nil
		},
	}
}

func digestCommand() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Email the proposal digest to every user once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg, os.Stderr)
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if to != "" {
				user, err := a.users.GetByEmail(ctx, to)
				if err != nil {
					return xerrors.Errorf("user %s: %w", to, err)
				}
				sent, err := a.digest.SendTo(ctx, *user)
				if err != nil {
					return err
				}
				return printJSON(map[string]bool{"sent": sent})
			}

			res, err := a.digest.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "send only to the user with this email")
	return cmd
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg, os.Stderr)
			gormDB, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			if err := dbpkg.AutoMigrate(gormDB); err != nil {
				return xerrors.Errorf("run migrations: %w", err)
			}
			log.Infow("Migrations applied")
			return nil
		},
	}
}
