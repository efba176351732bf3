// Package mcp exposes icwatchd state to AI assistants over the Model
// Context Protocol.
package mcp

import (
	"context"
	"log"
	"os"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

var version = "dev"

// MCPServer exposes icwatch tools on stdio.
type MCPServer struct {
	api         DaemonAPI
	pingName    string
	pingTimeout time.Duration
	logger      zerolog.Logger
}

// New creates an MCPServer. Call Run() to start serving on stdio.
func New(cfg Config, logger zerolog.Logger) *MCPServer {
	return &MCPServer{
		api:         NewAPIClient(cfg.Daemon.Socket),
		pingName:    cfg.Ping.Name,
		pingTimeout: cfg.Ping.Timeout,
		logger:      logger.With().Str("component", "mcp").Logger(),
	}
}

// SetDaemonAPI overrides the daemon API client. Intended for testing with a mock.
func (s *MCPServer) SetDaemonAPI(api DaemonAPI) {
	s.api = api
}

// Run registers the tools and serves on stdio until stdin closes or ctx is
// cancelled.
func (s *MCPServer) Run(ctx context.Context) error {
	srv := mcpserver.NewMCPServer(
		"icwatch",
		version,
		mcpserver.WithRecovery(),
	)

	s.registerTools(srv)

	stdio := mcpserver.NewStdioServer(srv)
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))

	s.logger.Info().Msg("MCP server starting on stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *MCPServer) registerTools(srv *mcpserver.MCPServer) {
	srv.AddTool(
		mcplib.NewTool("get_status",
			mcplib.WithDescription("Get icwatchd status: uptime, provider, heartbeat server and client settings, tracked and expired client counts, alert integrations"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetStatus,
	)

	srv.AddTool(
		mcplib.NewTool("list_clients",
			mcplib.WithDescription("List every server that has sent a heartbeat, with its liveness state, remaining ticks and last heartbeat time"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleListClients,
	)

	srv.AddTool(
		mcplib.NewTool("recent_alerts",
			mcplib.WithDescription("List recent alerts (offline, online, spot interruption), newest first. Requires the embedded NATS server."),
			mcplib.WithNumber("limit", mcplib.Description("Maximum number of alerts to return (default 20)")),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleRecentAlerts,
	)

	srv.AddTool(
		mcplib.NewTool("ping_server",
			mcplib.WithDescription("Send one heartbeat to an icwatch heartbeat server and return its reply"),
			mcplib.WithString("url", mcplib.Required(), mcplib.Description("Target in the form ic://default:<key>@<host>[:port]")),
			mcplib.WithString("name", mcplib.Description("Heartbeat name to report (default from config)")),
			mcplib.WithString("message", mcplib.Description("Free-form heartbeat message")),
		),
		s.handlePingServer,
	)
}
