package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/icwatch/icwatch/internal/registry"
	"github.com/icwatch/icwatch/pkg/protocol"
)

type fakeHistory struct {
	alerts []json.RawMessage
	err    error
	limit  int
}

func (f *fakeHistory) RecentAlerts(_ context.Context, limit int) ([]json.RawMessage, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.alerts[:min(limit, len(f.alerts))], nil
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatus(t *testing.T) {
	reg := registry.New(4)
	reg.Touch("A")
	reg.Touch("B")
	for range 4 {
		reg.Tick()
	}
	reg.Touch("A")

	s := New("", Info{
		Name:         "P",
		Provider:     "LocalHost",
		ServerListen: ":9080",
		Integrations: []string{"feishu"},
	}, reg, time.Now().Add(-time.Minute), zerolog.Nop())

	rec := get(t, s.Handler(), "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var resp protocol.StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Name != "P" || !resp.ServerRunning {
		t.Errorf("resp = %+v", resp)
	}
	if resp.ClientCount != 2 || resp.ExpiredCount != 1 {
		t.Errorf("clients = %d, expired = %d; want 2, 1", resp.ClientCount, resp.ExpiredCount)
	}
	if len(resp.Integrations) != 1 || resp.Integrations[0] != "feishu" {
		t.Errorf("integrations = %v", resp.Integrations)
	}
}

func TestStatusWithoutServer(t *testing.T) {
	s := New("", Info{Name: "P"}, nil, time.Now(), zerolog.Nop())
	var resp protocol.StatusResponse
	json.NewDecoder(get(t, s.Handler(), "/api/v1/status").Body).Decode(&resp)
	if resp.ServerRunning || resp.ClientCount != 0 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Integrations == nil {
		t.Error("integrations encoded as null")
	}
}

func TestClients(t *testing.T) {
	reg := registry.New(3)
	reg.Touch("b")
	reg.Touch("a")
	reg.Tick()

	s := New("", Info{}, reg, time.Now(), zerolog.Nop())
	var resp protocol.ClientsResponse
	json.NewDecoder(get(t, s.Handler(), "/api/v1/clients").Body).Decode(&resp)

	if len(resp.Clients) != 2 {
		t.Fatalf("got %d clients", len(resp.Clients))
	}
	c := resp.Clients[0]
	if c.Name != "a" || c.Ticks != 2 || c.MaxTicks != 3 || c.State != "alive" {
		t.Errorf("client = %+v", c)
	}
}

func TestClientsEmptyList(t *testing.T) {
	s := New("", Info{}, nil, time.Now(), zerolog.Nop())
	body := get(t, s.Handler(), "/api/v1/clients").Body.String()
	if !strings.Contains(body, `"clients":[]`) {
		t.Errorf("body = %s", body)
	}
}

func TestAlerts(t *testing.T) {
	h := &fakeHistory{}
	for i := 3; i >= 1; i-- {
		h.alerts = append(h.alerts, json.RawMessage(fmt.Sprintf(
			`{"id":"evt_%d","code":"offline","target":{"kind":"another","name":"X"}}`, i)))
	}
	h.alerts = append(h.alerts, json.RawMessage(`not json`))

	s := New("", Info{}, nil, time.Now(), zerolog.Nop())
	s.SetAlertHistory(h)

	var resp protocol.AlertsResponse
	json.NewDecoder(get(t, s.Handler(), "/api/v1/alerts?limit=2").Body).Decode(&resp)
	if h.limit != 2 {
		t.Errorf("limit = %d, want 2", h.limit)
	}
	if len(resp.Alerts) != 2 || resp.Alerts[0].ID != "evt_3" || resp.Alerts[0].Target.Name != "X" {
		t.Errorf("alerts = %+v", resp.Alerts)
	}

	json.NewDecoder(get(t, s.Handler(), "/api/v1/alerts").Body).Decode(&resp)
	if h.limit != defaultAlertLimit {
		t.Errorf("default limit = %d", h.limit)
	}
	if len(resp.Alerts) != 3 {
		t.Errorf("undecodable alert not skipped: %d alerts", len(resp.Alerts))
	}

	get(t, s.Handler(), "/api/v1/alerts?limit=100000")
	if h.limit != maxAlertLimit {
		t.Errorf("limit not capped: %d", h.limit)
	}
}

func TestAlertsErrors(t *testing.T) {
	s := New("", Info{}, nil, time.Now(), zerolog.Nop())
	if code := get(t, s.Handler(), "/api/v1/alerts").Code; code != http.StatusServiceUnavailable {
		t.Errorf("without history: %d", code)
	}

	s.SetAlertHistory(&fakeHistory{err: errors.New("stream gone")})
	if code := get(t, s.Handler(), "/api/v1/alerts").Code; code != http.StatusInternalServerError {
		t.Errorf("history error: %d", code)
	}
	if code := get(t, s.Handler(), "/api/v1/alerts?limit=-1").Code; code != http.StatusBadRequest {
		t.Errorf("bad limit: %d", code)
	}
}

func TestMetrics(t *testing.T) {
	s := New("", Info{}, nil, time.Now(), zerolog.Nop())
	if code := get(t, s.Handler(), "/metrics").Code; code != http.StatusNotFound {
		t.Errorf("without handler: %d", code)
	}
	s.SetMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("icwatch_keepalive_clients 0\n"))
	}))
	if body := get(t, s.Handler(), "/metrics").Body.String(); !strings.Contains(body, "icwatch_keepalive_clients") {
		t.Errorf("body = %q", body)
	}
}

func TestStartOnUnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "run", "icwatchd.sock")
	s := New(sock, Info{Name: "P"}, registry.New(4), time.Now(), zerolog.Nop())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", sock)
		},
	}}

	var resp *http.Response
	var err error
	for range 100 {
		resp, err = client.Get("http://icwatchd/api/v1/status")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET over socket: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Shutdown(ctx)
	if err := <-errCh; err != http.ErrServerClosed {
		t.Errorf("Start returned %v, want ErrServerClosed", err)
	}
}
