package natsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/icwatch/icwatch/pkg/protocol"
)

// AlertStream is the JetStream stream that keeps recent alerts.
const AlertStream = "ICWATCH_ALERTS"

// alertHistory bounds the alert stream.
const alertHistory = 1000

// Config holds settings for the embedded NATS server.
type Config struct {
	StoreDir string
	Host     string
	Port     int
	Token    string // If non-empty, requires token auth for NATS connections.
}

// Server wraps an embedded NATS server with JetStream.
type Server struct {
	ns     *server.Server
	nc     *nats.Conn
	alerts jetstream.Stream
	logger zerolog.Logger
}

// New creates and starts the embedded NATS server and ensures the alert
// stream exists.
func New(cfg Config, logger zerolog.Logger) (*Server, error) {
	opts := &server.Options{
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		DontListen: cfg.Host == "",
		Host:       cfg.Host,
		Port:       cfg.Port,
		NoLog:      true,
		NoSigs:     true,
	}
	if cfg.Token != "" {
		opts.Authorization = cfg.Token
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("nats server create: %w", err)
	}

	ns.SetLoggerV2(newZerologAdapter(logger), false, false, false)

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("nats server failed to become ready")
	}

	var connectOpts []nats.Option
	if opts.DontListen {
		connectOpts = append(connectOpts, nats.InProcessServer(ns))
	}
	if cfg.Token != "" {
		connectOpts = append(connectOpts, nats.Token(cfg.Token))
	}
	nc, err := nats.Connect(ns.ClientURL(), connectOpts...)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	alerts, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     AlertStream,
		Subjects: []string{protocol.SubjectAlertsAll},
		MaxMsgs:  alertHistory,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("create alert stream: %w", err)
	}

	logger.Info().Str("client_url", ns.ClientURL()).Msg("embedded NATS started")

	return &Server{ns: ns, nc: nc, alerts: alerts, logger: logger}, nil
}

// Conn returns the internal NATS client connection.
func (s *Server) Conn() *nats.Conn { return s.nc }

// ClientURL returns the NATS client connection URL.
func (s *Server) ClientURL() string { return s.ns.ClientURL() }

// RecentAlerts returns up to limit stored alert payloads, newest first.
func (s *Server) RecentAlerts(ctx context.Context, limit int) ([]json.RawMessage, error) {
	info, err := s.alerts.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert stream info: %w", err)
	}
	out := make([]json.RawMessage, 0, min(limit, int(info.State.Msgs)))
	if info.State.Msgs == 0 {
		return out, nil
	}
	for seq := info.State.LastSeq; seq >= info.State.FirstSeq && len(out) < limit; seq-- {
		msg, err := s.alerts.GetMsg(ctx, seq)
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get alert %d: %w", seq, err)
		}
		out = append(out, json.RawMessage(msg.Data))
	}
	return out, nil
}

// Shutdown gracefully drains and shuts down.
func (s *Server) Shutdown() {
	s.logger.Info().Msg("shutting down embedded NATS")
	s.nc.Drain()
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}
