package spot

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/icwatch/icwatch/internal/alert"
	"github.com/icwatch/icwatch/internal/metrics"
)

// Sink receives interruption alerts.
type Sink interface {
	Notify(ev alert.Event)
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Provider Provider
	Interval time.Duration
	Name     string // alert target, defaults to the hostname
	Callback string // shell script run once per interruption
}

// Watcher polls a Probe and raises one alert per interruption notice.
type Watcher struct {
	cfg     WatcherConfig
	code    alert.Code
	probe   Probe
	sink    Sink
	metrics metrics.Collector
	logger  zerolog.Logger

	mu      sync.Mutex
	latched bool
}

// NewWatcher creates a watcher for a cloud provider. LocalHost has nothing to
// watch and is rejected.
func NewWatcher(cfg WatcherConfig, probe Probe, sink Sink, logger zerolog.Logger) (*Watcher, error) {
	code, ok := cfg.Provider.AlertCode()
	if !ok {
		return nil, fmt.Errorf("provider %q has no spot metadata", cfg.Provider)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("spot interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Name == "" {
		cfg.Name = alert.Hostname()
	}
	return &Watcher{
		cfg:     cfg,
		code:    code,
		probe:   probe,
		sink:    sink,
		metrics: metrics.Nop{},
		logger:  logger.With().Str("component", "spot").Logger(),
	}, nil
}

// SetMetrics sets the metrics collector.
func (w *Watcher) SetMetrics(m metrics.Collector) { w.metrics = m }

// Run polls every interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info().
		Str("provider", string(w.cfg.Provider)).
		Dur("interval", w.cfg.Interval).
		Msg("watching for spot interruption")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		w.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check performs one query. The first Imminent result after a Normal (or
// initial) state sends an alert and runs the callback; further Imminent
// results are quiet until the service reports Normal again.
func (w *Watcher) Check(ctx context.Context) Status {
	res, err := w.probe.Query(ctx)
	w.metrics.RecordSpotProbe(res.Status.String())
	if err != nil {
		w.logger.Warn().Err(err).Msg("spot metadata query failed")
	}

	switch res.Status {
	case Normal:
		w.mu.Lock()
		w.latched = false
		w.mu.Unlock()
	case Imminent:
		w.mu.Lock()
		first := !w.latched
		w.latched = true
		w.mu.Unlock()
		if first {
			w.interrupt(ctx, res)
		}
	}
	return res.Status
}

func (w *Watcher) interrupt(ctx context.Context, res Result) {
	w.logger.Warn().
		Str("termination_time", res.TerminationTime).
		Str("instance_id", res.InstanceID).
		Str("instance_name", res.InstanceName).
		Msg("instance will be released soon")

	ev := alert.NewEvent(w.code, alert.Myself(w.cfg.Name))
	ev.Detail = res.Detail()
	w.sink.Notify(ev)

	if w.cfg.Callback == "" {
		return
	}
	out, err := exec.CommandContext(ctx, "sh", w.cfg.Callback).CombinedOutput()
	if err != nil {
		w.logger.Error().Err(err).Str("script", w.cfg.Callback).Bytes("output", out).Msg("interrupt callback failed")
		return
	}
	w.logger.Info().Str("script", w.cfg.Callback).Bytes("output", out).Msg("interrupt callback finished")
}
