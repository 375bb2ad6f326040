package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sfcsim/internal/config"
	"github.com/nvandessel/sfcsim/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sfcsim",
		Short: "Stock-flow consistent model simulator",
		Long: `sfcsim solves the new developmentalist stock-flow consistent growth model
to its steady state.

Each period is solved with a fixed-point method, trending variables are
rescaled to fixed anchors between periods, and the run stops once two
consecutive periods agree within tolerance.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.sfcsim/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, trace, warn, error")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newVarsCmd(),
		newValidateCmd(),
		newRunsCmd(),
		newExportCmd(),
		newGraphCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// loadConfig resolves settings from the --config file, the environment and
// the --log-level flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger writes logs to the command's error stream.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}
