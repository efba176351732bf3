package keepalive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/icwatch/icwatch/internal/alert"
	"github.com/icwatch/icwatch/internal/metrics"
	"github.com/icwatch/icwatch/internal/registry"
)

// Sink receives transition events. Notify must not block.
type Sink interface {
	Notify(ev alert.Event)
}

// ServerConfig is the identity of a heartbeat server.
type ServerConfig struct {
	// Name is sent back in every pong.
	Name string
	// Key is the shared secret clients must present.
	Key string
	// IOTimeout bounds reading the request and writing the reply on each
	// connection. Zero disables the deadline, so a stalled peer holds its
	// handler goroutine until it disconnects.
	IOTimeout time.Duration
}

// Server accepts heartbeat connections and resets the registry.
type Server struct {
	cfg      ServerConfig
	registry *registry.Registry
	sink     Sink
	metrics  metrics.Collector
	logger   zerolog.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a Server that records heartbeats in reg and reports
// Online transitions to sink.
func NewServer(cfg ServerConfig, reg *registry.Registry, sink Sink, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: reg,
		sink:     sink,
		metrics:  metrics.Nop{},
		logger:   logger.With().Str("component", "keepalive-server").Logger(),
	}
}

// SetMetrics attaches a metrics collector. Must be called before Serve.
func (s *Server) SetMetrics(m metrics.Collector) {
	s.metrics = m
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections on ln until ctx is cancelled, handling each one
// in its own goroutine. Accept failures are logged and never end the loop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("heartbeat server listening")

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			s.logger.Error().Err(err).Dur("retry_in", delay).Msg("accept failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("remote", remote).Msg("heartbeat handler panicked")
		}
	}()

	if s.cfg.IOTimeout > 0 {
		conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))
	}

	p, err := Exchange(conn, s.cfg.Name, s.cfg.Key)
	if err != nil {
		class := Classify(err)
		s.metrics.RecordHeartbeat(class)
		s.logger.Warn().Err(err).Str("remote", remote).Str("class", class).Msg("heartbeat rejected")
		return
	}
	s.metrics.RecordHeartbeat("ok")
	s.logger.Debug().Str("client", p.Name).Str("msg", p.Msg).Str("remote", remote).Msg("heartbeat received")

	if s.registry.Touch(p.Name) {
		s.logger.Info().Str("client", p.Name).Msg("client is back online")
		s.metrics.RecordTransition(alert.Online.String())
		s.sink.Notify(alert.NewEvent(alert.Online, alert.Another(p.Name)))
	}
}
