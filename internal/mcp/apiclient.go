package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/icwatch/icwatch/pkg/protocol"
)

// DaemonAPI reads from the icwatchd control API.
// Implemented by APIClient; tests can provide a mock.
type DaemonAPI interface {
	GetStatus(ctx context.Context) (*protocol.StatusResponse, error)
	GetClients(ctx context.Context) (*protocol.ClientsResponse, error)
	GetAlerts(ctx context.Context, limit int) (*protocol.AlertsResponse, error)
}

// APIClient talks to icwatchd over its Unix socket.
type APIClient struct {
	client *http.Client
}

// NewAPIClient creates an APIClient for the daemon socket.
func NewAPIClient(socketPath string) *APIClient {
	return &APIClient{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return (&net.Dialer{}).DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

func (c *APIClient) GetStatus(ctx context.Context) (*protocol.StatusResponse, error) {
	var resp protocol.StatusResponse
	if err := c.getJSON(ctx, "/api/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) GetClients(ctx context.Context) (*protocol.ClientsResponse, error) {
	var resp protocol.ClientsResponse
	if err := c.getJSON(ctx, "/api/v1/clients", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) GetAlerts(ctx context.Context, limit int) (*protocol.AlertsResponse, error) {
	path := "/api/v1/alerts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp protocol.AlertsResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://icwatchd"+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
