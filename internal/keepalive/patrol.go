package keepalive

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/icwatch/icwatch/internal/alert"
	"github.com/icwatch/icwatch/internal/metrics"
	"github.com/icwatch/icwatch/internal/registry"
)

// Patrol periodically counts down the registry like a watchdog. A client
// that does not complete a heartbeat within max*period is reported Offline
// exactly once.
type Patrol struct {
	period   time.Duration
	registry *registry.Registry
	sink     Sink
	metrics  metrics.Collector
	logger   zerolog.Logger
}

// NewPatrol creates a Patrol sweeping reg every period.
func NewPatrol(period time.Duration, reg *registry.Registry, sink Sink, logger zerolog.Logger) *Patrol {
	return &Patrol{
		period:   period,
		registry: reg,
		sink:     sink,
		metrics:  metrics.Nop{},
		logger:   logger.With().Str("component", "patrol").Logger(),
	}
}

// SetMetrics attaches a metrics collector. Must be called before Run.
func (p *Patrol) SetMetrics(m metrics.Collector) {
	p.metrics = m
}

// Run sweeps once per period until ctx is cancelled.
func (p *Patrol) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Sweep ticks the registry once and reports every client that just expired.
// Alerts are dispatched after the registry lock is released. The client
// gauges are only published here so their writes never interleave.
func (p *Patrol) Sweep() []string {
	expired := p.registry.Tick()
	for _, name := range expired {
		p.logger.Warn().Str("client", name).Msg("client is offline")
		p.metrics.RecordTransition(alert.Offline.String())
		p.sink.Notify(alert.NewEvent(alert.Offline, alert.Another(name)))
	}
	p.metrics.SetClients(p.registry.Counts())
	return expired
}
