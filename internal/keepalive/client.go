package keepalive

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/icwatch/icwatch/internal/metrics"
)

// DefaultMessage is sent when no heartbeat message is configured.
const DefaultMessage = "I'm active"

// ClientConfig configures a heartbeat client.
type ClientConfig struct {
	// URL is the target, ic://default[:key]@host[:port].
	URL string
	// Key, when set, overrides the key embedded in URL.
	Key string
	// Name identifies this instance to the server.
	Name string
	// Period is the pause between heartbeats.
	Period time.Duration
	// Timeout bounds dialing and the whole exchange. Zero means no bound.
	Timeout time.Duration
	// Message is the free text sent with every heartbeat.
	Message string
}

// Client periodically pings a heartbeat server.
type Client struct {
	target  Target
	name    string
	period  time.Duration
	timeout time.Duration
	message string
	metrics metrics.Collector
	logger  zerolog.Logger
}

// NewClient validates cfg and resolves the target once.
func NewClient(cfg ClientConfig, logger zerolog.Logger) (*Client, error) {
	target, err := ParseTarget(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Key != "" {
		target.Key = cfg.Key
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("client name is required")
	}
	msg := cfg.Message
	if msg == "" {
		msg = DefaultMessage
	}
	return &Client{
		target:  target,
		name:    cfg.Name,
		period:  cfg.Period,
		timeout: cfg.Timeout,
		message: msg,
		metrics: metrics.Nop{},
		logger:  logger.With().Str("component", "keepalive-client").Str("target", target.Addr()).Logger(),
	}, nil
}

// SetMetrics attaches a metrics collector. Must be called before Run.
func (c *Client) SetMetrics(m metrics.Collector) {
	c.metrics = m
}

// Target returns the resolved destination.
func (c *Client) Target() Target { return c.target }

// Ping sends one heartbeat over a fresh connection and returns the server's
// pong.
func (c *Client) Ping(ctx context.Context, msg string) (Packet, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.target.Addr())
	if err != nil {
		return Packet{}, fmt.Errorf("connect %s: %w", c.target.Addr(), err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	req, err := Encode(Packet{Key: c.target.Key, Name: c.name, Msg: msg})
	if err != nil {
		return Packet{}, err
	}
	// the trailing newline marks the end of the request
	if _, err := conn.Write(req); err != nil {
		return Packet{}, fmt.Errorf("send heartbeat: %w", err)
	}

	body, err := io.ReadAll(conn)
	if err != nil {
		return Packet{}, fmt.Errorf("read pong: %w", err)
	}
	return DecodeResponse(body)
}

// Run pings the server, then waits one period, until ctx is cancelled.
// A failed ping is logged and never stops the loop.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info().Str("name", c.name).Dur("period", c.period).Msg("heartbeat client started")

	for {
		c.beat(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.period):
		}
	}
}

func (c *Client) beat(ctx context.Context) {
	pong, err := c.Ping(ctx, c.message)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordPing(false)
		c.logger.Warn().Err(err).Str("class", Classify(err)).Msg("heartbeat failed")
		return
	}
	c.metrics.RecordPing(true)
	c.logger.Debug().Str("server", pong.Name).Str("msg", pong.Msg).Msg("pong received")
}
