package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sfcsim/internal/logging"
	"github.com/nvandessel/sfcsim/internal/mcp"
	"github.com/nvandessel/sfcsim/internal/pathutil"
	"github.com/nvandessel/sfcsim/internal/store"
	"github.com/nvandessel/sfcsim/internal/telemetry"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve sfcsim tools over MCP (stdio)",
		Long: `Run an MCP server on stdin/stdout exposing the simulator as tools:

  sfcsim_run        solve the model with optional overrides
  sfcsim_variables  list variables and parameters
  sfcsim_runs       list or show saved runs
  sfcsim_trace      per-iteration factors of a saved run
  sfcsim_graph      equation dependency graph and simultaneous blocks
  sfcsim_export     write a saved run to <store dir>/exports

Saved runs go to the configured store directory; tool calls are audited in
audit.jsonl next to it. Logs are written to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			shutdown, err := telemetry.Setup(cmd.Context(), cfg.Telemetry)
			if err != nil {
				return fmt.Errorf("failed to set up telemetry: %w", err)
			}
			defer shutdown(context.Background())

			rs, err := store.NewSQLiteRunStore(cfg.Store.Dir)
			if err != nil {
				return fmt.Errorf("failed to open run store: %w", err)
			}
			defer rs.Close()

			il := logging.NewIterationLogger(cfg.Store.Dir, cfg.Logging.Level)
			defer il.Close()

			server, err := mcp.NewServer(&mcp.Config{
				Name:       "sfcsim",
				Version:    version,
				Settings:   cfg,
				Store:      rs,
				AuditDir:   cfg.Store.Dir,
				ExportDir:  pathutil.ExportDir(cfg.Store.Dir),
				Logger:     newLogger(cmd, cfg),
				Iterations: il,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			return server.Run(cmd.Context())
		},
	}
}
