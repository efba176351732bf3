package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/icwatch/icwatch/internal/alert"
	"github.com/icwatch/icwatch/internal/api"
	"github.com/icwatch/icwatch/internal/keepalive"
	"github.com/icwatch/icwatch/internal/metrics"
	"github.com/icwatch/icwatch/internal/natsserver"
	"github.com/icwatch/icwatch/internal/registry"
	"github.com/icwatch/icwatch/internal/spot"
)

// Daemon is the icwatchd process.
type Daemon struct {
	cfg    Config
	logger zerolog.Logger

	extra map[string]alert.Notifier

	nats          *natsserver.Server
	alertConn     *nats.Conn // external bus connection owned by the daemon
	dispatcher    *alert.Dispatcher
	metrics       *metrics.Prometheus
	registry      *registry.Registry
	heartbeatLn   net.Listener
	apiServer     *api.Server
	metricsServer *http.Server

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
	ready     chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewDaemon creates a Daemon from a validated config.
func NewDaemon(cfg Config, logger zerolog.Logger) *Daemon {
	return &Daemon{
		cfg:    cfg,
		logger: logger,
		extra:  make(map[string]alert.Notifier),
		ready:  make(chan struct{}),
		stopCh: make(chan struct{}),
	}
}

// AddNotifier registers an extra alert integration. Must be called before Run.
func (d *Daemon) AddNotifier(name string, n alert.Notifier) {
	d.extra[name] = n
}

// Run starts all subsystems and blocks until a signal is received or Stop is called.
func (d *Daemon) Run() error {
	d.startedAt = time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	if err := d.start(ctx); err != nil {
		d.shutdown()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	apiErrCh := make(chan error, 1)
	go func() {
		apiErrCh <- d.apiServer.Start()
	}()

	heartbeatErrCh := make(chan error, 1)
	if d.heartbeatLn != nil {
		d.serveHeartbeats(ctx, heartbeatErrCh)
	}

	d.logger.Info().
		Str("name", d.cfg.DisplayName()).
		Str("provider", d.cfg.Provider).
		Str("socket", d.cfg.Server.Socket).
		Strs("integrations", d.dispatcher.Integrations()).
		Msg("icwatchd started")
	close(d.ready)

	var runErr error
	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-d.stopCh:
		d.logger.Info().Msg("stop requested, shutting down")
	case err := <-apiErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error().Err(err).Msg("API server error")
			runErr = fmt.Errorf("api server: %w", err)
		}
	case err := <-heartbeatErrCh:
		d.logger.Error().Err(err).Msg("heartbeat server error")
		runErr = fmt.Errorf("heartbeat server: %w", err)
	}

	d.shutdown()
	return runErr
}

// start builds every component. Anything it returns an error for is torn
// down by shutdown.
func (d *Daemon) start(ctx context.Context) error {
	d.metrics = metrics.NewPrometheus()
	d.dispatcher = alert.NewDispatcher(d.cfg.Alert.Timeout, d.logger)
	d.dispatcher.SetRecorder(d.metrics)

	if d.cfg.NATS.Embedded {
		ns, err := natsserver.New(natsserver.Config{
			StoreDir: d.cfg.NATS.DataDir,
			Host:     d.cfg.NATS.Host,
			Port:     d.cfg.NATS.Port,
			Token:    d.cfg.NATS.Token,
		}, d.logger)
		if err != nil {
			return fmt.Errorf("start nats: %w", err)
		}
		d.nats = ns
	}

	if err := d.registerIntegrations(); err != nil {
		return err
	}

	ks := d.cfg.Keepalive.Server
	if ks.Enabled {
		ln, err := net.Listen("tcp", ks.Listen)
		if err != nil {
			return fmt.Errorf("heartbeat listen %s: %w", ks.Listen, err)
		}
		d.heartbeatLn = ln
		d.registry = registry.New(uint16(ks.Num))

		patrol := keepalive.NewPatrol(d.cfg.Period(), d.registry, d.dispatcher, d.logger)
		patrol.SetMetrics(d.metrics)
		d.goRun(func() { patrol.Run(ctx) })
	}

	if kc := d.cfg.Keepalive.Client; kc.URL != "" {
		client, err := keepalive.NewClient(keepalive.ClientConfig{
			URL:     kc.URL,
			Key:     kc.Key,
			Name:    d.cfg.DisplayName(),
			Period:  d.cfg.Period(),
			Timeout: d.cfg.Period(),
		}, d.logger)
		if err != nil {
			return fmt.Errorf("heartbeat client: %w", err)
		}
		client.SetMetrics(d.metrics)
		d.goRun(func() { client.Run(ctx) })
	}

	provider := spot.Provider(d.cfg.Provider)
	if provider != spot.LocalHost {
		w, err := spot.NewWatcher(spot.WatcherConfig{
			Provider: provider,
			Interval: d.cfg.SpotInterval(),
			Name:     d.cfg.DisplayName(),
			Callback: d.cfg.Spot.Callback,
		}, spot.NewProviderProbe(provider), d.dispatcher, d.logger)
		if err != nil {
			return err
		}
		w.SetMetrics(d.metrics)
		d.goRun(func() { w.Run(ctx) })
	}

	d.apiServer = api.New(d.cfg.Server.Socket, api.Info{
		Name:         d.cfg.DisplayName(),
		Provider:     d.cfg.Provider,
		ServerListen: d.HeartbeatAddr(),
		ClientTarget: d.clientTarget(),
		NATSRunning:  d.nats != nil,
		Integrations: d.dispatcher.Integrations(),
	}, d.registry, d.startedAt, d.logger)
	d.apiServer.SetMetricsHandler(d.metrics.Handler())
	if d.nats != nil {
		d.apiServer.SetAlertHistory(d.nats)
	}

	if d.cfg.Server.Listen != "" {
		ln, err := net.Listen("tcp", d.cfg.Server.Listen)
		if err != nil {
			return fmt.Errorf("metrics listen %s: %w", d.cfg.Server.Listen, err)
		}
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", d.metrics.Handler())
		d.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := d.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.logger.Error().Err(err).Msg("metrics server error")
			}
		}()
		d.logger.Info().Str("listen", ln.Addr().String()).Msg("metrics listening")
	}
	return nil
}

func (d *Daemon) registerIntegrations() error {
	ac := d.cfg.Alert
	if ac.Feishu.Webhook != "" {
		d.dispatcher.Register("feishu", alert.NewFeishuNotifier(ac.Feishu))
	}
	if ac.Slack.Token != "" && ac.Slack.Channel != "" {
		d.dispatcher.Register("slack", alert.NewSlackNotifier(ac.Slack))
	}
	if ac.NATS.Enabled {
		var nc *nats.Conn
		switch {
		case ac.NATS.URL != "":
			opts := []nats.Option{nats.Name("icwatchd")}
			if ac.NATS.Token != "" {
				opts = append(opts, nats.Token(ac.NATS.Token))
			}
			conn, err := nats.Connect(ac.NATS.URL, opts...)
			if err != nil {
				return fmt.Errorf("connect alert bus: %w", err)
			}
			d.alertConn = conn
			nc = conn
		case d.nats != nil:
			nc = d.nats.Conn()
		default:
			return fmt.Errorf("alert.nats needs a url or nats.embedded")
		}
		d.dispatcher.Register("nats", alert.NewNATSNotifier(nc))
	}
	for name, n := range d.extra {
		d.dispatcher.Register(name, n)
	}
	return nil
}

func (d *Daemon) serveHeartbeats(ctx context.Context, errCh chan<- error) {
	ks := d.cfg.Keepalive.Server
	srv := keepalive.NewServer(keepalive.ServerConfig{
		Name:      d.cfg.DisplayName(),
		Key:       ks.Key,
		IOTimeout: ks.IOTimeout,
	}, d.registry, d.dispatcher, d.logger)
	srv.SetMetrics(d.metrics)

	d.goRun(func() {
		if err := srv.Serve(ctx, d.heartbeatLn); err != nil {
			errCh <- err
		}
	})
}

func (d *Daemon) goRun(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

func (d *Daemon) clientTarget() string {
	if d.cfg.Keepalive.Client.URL == "" {
		return ""
	}
	t, err := keepalive.ParseTarget(d.cfg.Keepalive.Client.URL)
	if err != nil {
		return ""
	}
	return t.Addr()
}

// Ready is closed once every subsystem is running.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// Stop signals the daemon to shut down. Safe to call from another goroutine.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// HeartbeatAddr returns the bound heartbeat listener address, or "" when the
// heartbeat server is disabled.
func (d *Daemon) HeartbeatAddr() string {
	if d.heartbeatLn == nil {
		return ""
	}
	return d.heartbeatLn.Addr().String()
}

// NATSClientURL returns the embedded NATS server's client URL.
func (d *Daemon) NATSClientURL() string {
	if d.nats == nil {
		return ""
	}
	return d.nats.ClientURL()
}

func (d *Daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d.cancel != nil {
		d.cancel()
	}
	if d.apiServer != nil {
		d.apiServer.Shutdown(ctx)
	}
	if d.metricsServer != nil {
		d.metricsServer.Shutdown(ctx)
	}
	if d.heartbeatLn != nil {
		d.heartbeatLn.Close()
	}
	d.wg.Wait()

	if d.dispatcher != nil {
		d.dispatcher.Close()
	}
	if d.alertConn != nil {
		d.alertConn.Close()
	}
	if d.nats != nil {
		d.nats.Shutdown()
	}
}
