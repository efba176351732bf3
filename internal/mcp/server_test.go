package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/icwatch/icwatch/internal/alert"
	"github.com/icwatch/icwatch/internal/api"
	"github.com/icwatch/icwatch/internal/keepalive"
	"github.com/icwatch/icwatch/internal/registry"
	"github.com/icwatch/icwatch/pkg/protocol"
)

// mockAPI implements DaemonAPI for unit tests.
type mockAPI struct {
	status    *protocol.StatusResponse
	clients   *protocol.ClientsResponse
	alerts    *protocol.AlertsResponse
	alertsErr error
	limit     int
}

func (m *mockAPI) GetStatus(_ context.Context) (*protocol.StatusResponse, error) {
	return m.status, nil
}
func (m *mockAPI) GetClients(_ context.Context) (*protocol.ClientsResponse, error) {
	return m.clients, nil
}
func (m *mockAPI) GetAlerts(_ context.Context, limit int) (*protocol.AlertsResponse, error) {
	m.limit = limit
	return m.alerts, m.alertsErr
}

func resultText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	return r.Content[0].(mcplib.TextContent).Text
}

func TestGetStatus(t *testing.T) {
	s := &MCPServer{
		api: &mockAPI{
			status: &protocol.StatusResponse{
				Status:        "ok",
				Uptime:        "1h30m",
				ServerRunning: true,
				ClientCount:   3,
				ExpiredCount:  1,
			},
		},
	}

	result, err := s.handleGetStatus(context.Background(), mcplib.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("expected success, got error result")
	}

	var status protocol.StatusResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &status); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if status.Status != "ok" || status.ClientCount != 3 || status.ExpiredCount != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestListClients(t *testing.T) {
	s := &MCPServer{
		api: &mockAPI{
			clients: &protocol.ClientsResponse{
				Clients: []protocol.ClientInfo{
					{Name: "db-1", State: "alive", Ticks: 4, MaxTicks: 4},
					{Name: "web-1", State: "expired", Ticks: 0, MaxTicks: 4},
				},
			},
		},
	}

	result, err := s.handleListClients(context.Background(), mcplib.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var clients []protocol.ClientInfo
	if err := json.Unmarshal([]byte(resultText(t, result)), &clients); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(clients) != 2 || clients[1].State != "expired" {
		t.Errorf("clients = %+v", clients)
	}
}

func TestRecentAlerts(t *testing.T) {
	m := &mockAPI{alerts: &protocol.AlertsResponse{Alerts: []protocol.AlertRecord{
		{ID: "evt_1", Code: "offline", Target: protocol.Target{Kind: "another", Name: "X"}},
	}}}
	s := &MCPServer{api: m}

	req := mcplib.CallToolRequest{}
	req.Params.Arguments = map[string]any{"limit": float64(5)}
	result, _ := s.handleRecentAlerts(context.Background(), req)
	if result.IsError {
		t.Fatalf("error result: %s", resultText(t, result))
	}
	if m.limit != 5 {
		t.Errorf("limit = %d, want 5", m.limit)
	}
	var alerts []protocol.AlertRecord
	json.Unmarshal([]byte(resultText(t, result)), &alerts)
	if len(alerts) != 1 || alerts[0].Target.Name != "X" {
		t.Errorf("alerts = %+v", alerts)
	}

	m.alertsErr = errors.New("/api/v1/alerts returned status 503")
	result, _ = s.handleRecentAlerts(context.Background(), mcplib.CallToolRequest{})
	if !result.IsError {
		t.Error("expected error result when history is unavailable")
	}
}

func startHeartbeatServer(t *testing.T, key string) (string, *registry.Registry) {
	t.Helper()
	reg := registry.New(4)
	srv := keepalive.NewServer(keepalive.ServerConfig{Name: "P", Key: key}, reg, nopSink{}, zerolog.Nop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)
	t.Cleanup(cancel)
	return ln.Addr().String(), reg
}

type nopSink struct{}

func (nopSink) Notify(alert.Event) {}

func TestPingServer(t *testing.T) {
	addr, reg := startHeartbeatServer(t, "coin")
	s := &MCPServer{pingName: "icwatch-mcp", pingTimeout: 2 * time.Second, logger: zerolog.Nop()}

	req := mcplib.CallToolRequest{}
	req.Params.Arguments = map[string]any{"url": "ic://default:coin@" + addr}
	result, _ := s.handlePingServer(context.Background(), req)
	if result.IsError {
		t.Fatalf("error result: %s", resultText(t, result))
	}
	var got pingResult
	json.Unmarshal([]byte(resultText(t, result)), &got)
	if got.Status != "ok" || got.Server != "P" || got.Message != "see you next period" {
		t.Errorf("result = %+v", got)
	}
	if _, ok := reg.Ticks("icwatch-mcp"); !ok {
		t.Error("server did not register the default ping name")
	}

	req.Params.Arguments = map[string]any{"url": "ic://default:coin@" + addr, "name": "laptop"}
	s.handlePingServer(context.Background(), req)
	if _, ok := reg.Ticks("laptop"); !ok {
		t.Error("server did not register the explicit name")
	}
}

func TestPingServerFailures(t *testing.T) {
	addr, _ := startHeartbeatServer(t, "coin")
	s := &MCPServer{pingName: "icwatch-mcp", pingTimeout: 2 * time.Second, logger: zerolog.Nop()}

	req := mcplib.CallToolRequest{}
	req.Params.Arguments = map[string]any{"url": "ic://default:wrong@" + addr}
	result, _ := s.handlePingServer(context.Background(), req)
	if result.IsError {
		t.Fatal("rejected heartbeat should be a result, not a tool error")
	}
	var got pingResult
	json.Unmarshal([]byte(resultText(t, result)), &got)
	if got.Status != "failed" || got.Class != keepalive.ClassAuth {
		t.Errorf("result = %+v", got)
	}

	req.Params.Arguments = map[string]any{"url": "http://" + addr}
	if result, _ := s.handlePingServer(context.Background(), req); !result.IsError {
		t.Error("expected error result for a bad url")
	}

	req.Params.Arguments = map[string]any{}
	if result, _ := s.handlePingServer(context.Background(), req); !result.IsError {
		t.Error("expected error result for a missing url")
	}
}

func TestMCPEndToEnd(t *testing.T) {
	addr, reg := startHeartbeatServer(t, "coin")

	socketPath := filepath.Join(t.TempDir(), "d.sock")
	apiServer := api.New(socketPath, api.Info{Name: "P", ServerListen: addr}, reg, time.Now(), zerolog.Nop())
	go apiServer.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		apiServer.Shutdown(ctx)
	})

	s := &MCPServer{
		api:         NewAPIClient(socketPath),
		pingName:    "e2e",
		pingTimeout: 2 * time.Second,
		logger:      zerolog.Nop(),
	}

	req := mcplib.CallToolRequest{}
	req.Params.Arguments = map[string]any{"url": "ic://default:coin@" + addr}
	if result, _ := s.handlePingServer(context.Background(), req); result.IsError {
		t.Fatalf("ping failed: %s", resultText(t, result))
	}

	var status protocol.StatusResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		result, _ := s.handleGetStatus(context.Background(), mcplib.CallToolRequest{})
		if !result.IsError {
			json.Unmarshal([]byte(resultText(t, result)), &status)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("get_status failed: %s", resultText(t, result))
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.ClientCount != 1 || !status.ServerRunning {
		t.Errorf("status = %+v", status)
	}

	result, _ := s.handleListClients(context.Background(), mcplib.CallToolRequest{})
	var clients []protocol.ClientInfo
	json.Unmarshal([]byte(resultText(t, result)), &clients)
	if len(clients) != 1 || clients[0].Name != "e2e" || clients[0].State != "alive" {
		t.Errorf("clients = %+v", clients)
	}

	result, _ = s.handleRecentAlerts(context.Background(), mcplib.CallToolRequest{})
	if !result.IsError {
		t.Error("recent_alerts without history should fail")
	}
}
