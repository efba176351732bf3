package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/icwatch/icwatch/internal/keepalive"
)

func (s *MCPServer) handleGetStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	status, err := s.api.GetStatus(ctx)
	if err != nil {
		return textError("failed to get status: " + err.Error()), nil
	}
	return textJSON(status)
}

func (s *MCPServer) handleListClients(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	clients, err := s.api.GetClients(ctx)
	if err != nil {
		return textError("failed to list clients: " + err.Error()), nil
	}
	return textJSON(clients.Clients)
}

func (s *MCPServer) handleRecentAlerts(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := req.GetInt("limit", 0)
	if limit < 0 {
		return textError("limit must not be negative"), nil
	}
	alerts, err := s.api.GetAlerts(ctx, limit)
	if err != nil {
		return textError("failed to list alerts: " + err.Error()), nil
	}
	return textJSON(alerts.Alerts)
}

type pingResult struct {
	Status  string `json:"status"`
	Server  string `json:"server,omitempty"`
	Message string `json:"message,omitempty"`
	Class   string `json:"class,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *MCPServer) handlePingServer(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return textError("missing required parameter: url"), nil
	}

	client, err := keepalive.NewClient(keepalive.ClientConfig{
		URL:     url,
		Name:    req.GetString("name", s.pingName),
		Timeout: s.pingTimeout,
	}, s.logger)
	if err != nil {
		return textError("invalid ping target: " + err.Error()), nil
	}

	pong, err := client.Ping(ctx, req.GetString("message", keepalive.DefaultMessage))
	if err != nil {
		// A failed heartbeat is a result, not a tool failure.
		data, _ := json.MarshalIndent(pingResult{
			Status: "failed",
			Class:  keepalive.Classify(err),
			Error:  err.Error(),
		}, "", "  ")
		return textResult(string(data)), nil
	}
	return textJSON(pingResult{Status: "ok", Server: pong.Name, Message: pong.Msg})
}

// textResult returns a successful text result.
func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

// textError returns an error text result.
func textError(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// textJSON marshals v to indented JSON and returns it as a text result.
func textJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textError("failed to marshal response: " + err.Error()), nil
	}
	return textResult(string(data)), nil
}
