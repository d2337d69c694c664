// Package main provides the entry point for the governance agent.
package main

import (
	"fmt"
	"io"
	"os"

	"governance-agent/internal/config"
	"governance-agent/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const programName = "govagent"

var (
	globalFlags = struct {
		debug      bool
		configFile string
	}{}
)

// loadConfig reads .env (when present), the environment and the routing
// file, with command line flags taking precedence.
func loadConfig() (config.Config, error) {
	// Try to load .env from CWD if present; otherwise use environment as-is
	if _, statErr := os.Stat(".env"); statErr == nil {
		_ = godotenv.Load(".env")
	}
	if globalFlags.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", globalFlags.configFile); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if globalFlags.debug {
		cfg.Debug = true
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) *zap.SugaredLogger {
	return logger.NewWithWriter(cfg.Debug, w).With("component", programName)
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Email-driven DAO governance agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.configFile, "config", "", "path to the chain routing YAML file")

	// Subcommands
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(reconcileCommand())
	rootCmd.AddCommand(digestCommand())
	rootCmd.AddCommand(watchCommand())
	rootCmd.AddCommand(migrateCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
