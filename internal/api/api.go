// Package api serves the icwatchd control API over a Unix socket.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/icwatch/icwatch/internal/registry"
	"github.com/icwatch/icwatch/pkg/protocol"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 500
)

// AlertHistory returns stored alert payloads, newest first.
type AlertHistory interface {
	RecentAlerts(ctx context.Context, limit int) ([]json.RawMessage, error)
}

// Info is the static part of the status response.
type Info struct {
	Name         string
	Provider     string
	ServerListen string // empty when the heartbeat server is disabled
	ClientTarget string // empty when the heartbeat client is disabled
	NATSRunning  bool
	Integrations []string
}

// Server serves the control API.
type Server struct {
	socketPath string
	info       Info
	registry   *registry.Registry
	history    AlertHistory
	metrics    http.Handler
	startedAt  time.Time
	httpServer *http.Server
	logger     zerolog.Logger
}

// New creates an API server. reg is nil when the heartbeat server is disabled.
func New(socketPath string, info Info, reg *registry.Registry, startedAt time.Time, logger zerolog.Logger) *Server {
	s := &Server{
		socketPath: socketPath,
		info:       info,
		registry:   reg,
		startedAt:  startedAt,
		logger:     logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/clients", s.handleClients)
	mux.HandleFunc("GET /api/v1/alerts", s.handleAlerts)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// SetAlertHistory enables GET /api/v1/alerts.
func (s *Server) SetAlertHistory(h AlertHistory) { s.history = h }

// SetMetricsHandler enables GET /metrics.
func (s *Server) SetMetricsHandler(h http.Handler) { s.metrics = h }

// Handler returns the API router.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens on the Unix socket and blocks until Shutdown.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return err
	}
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	os.Chmod(s.socketPath, 0o600)

	s.logger.Info().Str("socket", s.socketPath).Msg("API server listening")
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := protocol.StatusResponse{
		Status:        "ok",
		Uptime:        time.Since(s.startedAt).Truncate(time.Second).String(),
		Name:          s.info.Name,
		Provider:      s.info.Provider,
		NATSRunning:   s.info.NATSRunning,
		StartedAt:     s.startedAt,
		ServerRunning: s.registry != nil,
		ServerListen:  s.info.ServerListen,
		ClientTarget:  s.info.ClientTarget,
		Integrations:  s.info.Integrations,
	}
	if resp.Integrations == nil {
		resp.Integrations = []string{}
	}
	if s.registry != nil {
		resp.ClientCount, resp.ExpiredCount = s.registry.Counts()
	}
	writeJSON(w, resp)
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	clients := []protocol.ClientInfo{}
	if s.registry != nil {
		for _, e := range s.registry.Snapshot() {
			clients = append(clients, protocol.ClientInfo{
				Name:      e.Name,
				State:     string(e.State),
				Ticks:     e.Ticks,
				MaxTicks:  s.registry.Max(),
				FirstSeen: e.FirstSeen,
				LastSeen:  e.LastSeen,
			})
		}
	}
	writeJSON(w, protocol.ClientsResponse{Clients: clients})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "alert history requires the embedded NATS server", http.StatusServiceUnavailable)
		return
	}
	limit := defaultAlertLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxAlertLimit)
	}

	raw, err := s.history.RecentAlerts(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("read alert history")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	alerts := make([]protocol.AlertRecord, 0, len(raw))
	for _, data := range raw {
		var rec protocol.AlertRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn().Err(err).Msg("skipping undecodable alert")
			continue
		}
		alerts = append(alerts, rec)
	}
	writeJSON(w, protocol.AlertsResponse{Alerts: alerts})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
