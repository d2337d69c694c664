package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"governance-agent/internal/store"
	"governance-agent/internal/tui"

	"github.com/spf13/cobra"
)

func watchCommand() *cobra.Command {
	var (
		interval time.Duration
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show a live board of vote statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// If debug logs are enabled, write them to file to avoid interfering with TUI
			var logWriter io.Writer = io.Discard
			if cfg.Debug {
				logFile, err := os.OpenFile("govagent.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err == nil {
					defer logFile.Close()
					logWriter = logFile
					fmt.Fprintf(os.Stderr, "Debug logs written to govagent.log\n")
				}
			}
			log := newLogger(cfg, logWriter)

			gormDB, err := openDB(cfg, log)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			updates := make(chan tui.Snapshot, 1)
			go tui.Poll(ctx, store.NewVotes(gormDB), interval, limit, updates)

			err = tui.Run(fmt.Sprintf("%s votes (%s)", programName, cfg.DBDialect), updates)
			// TUI exited, stop polling
			cancel()
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "refresh interval")
	cmd.Flags().IntVar(&limit, "limit", 50, "number of recent votes to show")
	return cmd
}
