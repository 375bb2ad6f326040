// Package mcp provides an MCP (Model Context Protocol) server for sfcsim.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/sfcsim/internal/config"
	"github.com/nvandessel/sfcsim/internal/logging"
	"github.com/nvandessel/sfcsim/internal/ratelimit"
	"github.com/nvandessel/sfcsim/internal/session"
	"github.com/nvandessel/sfcsim/internal/store"
)

// Server wraps the MCP SDK server with the sfcsim tools.
type Server struct {
	server       *sdk.Server
	session      *session.Session
	store        store.RunStore
	settings     *config.Config
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	exportDir    string
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string
	Version string

	// Settings supplies the default solver settings. Nil means config.Default().
	Settings *config.Config

	// Store persists runs. Nil means an in-memory store that lives as long
	// as the server.
	Store store.RunStore

	// AuditDir receives audit.jsonl. Empty disables the audit log.
	AuditDir string

	// ExportDir confines files written by sfcsim_export. Empty disables
	// the tool.
	ExportDir string

	Logger     *slog.Logger
	Iterations *logging.IterationLogger
}

// NewServer creates an MCP server with the sfcsim tools and resources.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rs := cfg.Store
	if rs == nil {
		rs = store.NewInMemoryRunStore()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server: mcpServer,
		session: &session.Session{
			Store:      rs,
			Logger:     logger,
			Iterations: cfg.Iterations,
		},
		store:        rs,
		settings:     settings,
		toolLimiters: ratelimit.NewToolLimiters(),
		exportDir:    cfg.ExportDir,
		logger:       logger,
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until the client disconnects, ctx is cancelled or
// the process is interrupted.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.Close()
	return err
}

// Close releases the audit log. The run store is left to the caller.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
