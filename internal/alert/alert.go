// Package alert delivers liveness and spot-interruption events to operators.
//
// A Dispatcher fans one Event out to every configured integration. Each
// integration is independent: a failing or slow notifier never suppresses
// delivery to the others, and callers never see individual failures beyond
// the per-integration result map.
package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Notifier is one alert integration (chat webhook, message bus, ...).
type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

// Recorder observes delivery outcomes. Satisfied by the metrics collectors.
type Recorder interface {
	RecordAlert(integration, code string, ok bool)
}

// Dispatcher sends events to a named set of notifiers.
type Dispatcher struct {
	mu           sync.RWMutex
	integrations map[string]Notifier
	timeout      time.Duration
	recorder     Recorder
	logger       zerolog.Logger

	// pending tracks Notify deliveries still in flight.
	pendingMu sync.Mutex
	pending   sync.WaitGroup
	closed    bool
}

// DefaultTimeout bounds a Notify delivery when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// NewDispatcher creates a Dispatcher with no integrations.
// timeout bounds each fire-and-forget delivery started by Notify.
func NewDispatcher(timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		integrations: make(map[string]Notifier),
		timeout:      timeout,
		logger:       logger.With().Str("component", "alert").Logger(),
	}
}

// Register adds or replaces the integration under name.
func (d *Dispatcher) Register(name string, n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.integrations[name] = n
}

// SetRecorder attaches a delivery recorder. Must be called before Send.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// Integrations returns the registered integration names, sorted.
func (d *Dispatcher) Integrations() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.integrations))
	for name := range d.integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send delivers ev to every integration concurrently and reports the outcome
// per integration name.
func (d *Dispatcher) Send(ctx context.Context, ev Event) map[string]bool {
	d.mu.RLock()
	targets := make(map[string]Notifier, len(d.integrations))
	for name, n := range d.integrations {
		targets[name] = n
	}
	d.mu.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = make(map[string]bool, len(targets))
	)
	for name, n := range targets {
		wg.Add(1)
		go func(name string, n Notifier) {
			defer wg.Done()
			ok := d.deliver(ctx, name, n, ev)
			mu.Lock()
			result[name] = ok
			mu.Unlock()
		}(name, n)
	}
	wg.Wait()
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, name string, n Notifier, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("integration", name).Msg("notifier panicked")
			ok = false
		}
		if d.recorder != nil {
			d.recorder.RecordAlert(name, ev.Code.String(), ok)
		}
	}()

	d.logger.Info().
		Str("integration", name).
		Str("code", ev.Code.String()).
		Str("target", ev.Target.Name).
		Msg("send an alert")
	if err := n.Send(ctx, ev); err != nil {
		d.logger.Error().Err(err).Str("integration", name).Msg("alert delivery failed")
		return false
	}
	return true
}

// Notify sends ev in the background. It never blocks the caller.
// Events notified after Close are dropped.
func (d *Dispatcher) Notify(ev Event) {
	d.pendingMu.Lock()
	if d.closed {
		d.pendingMu.Unlock()
		d.logger.Warn().Str("code", ev.Code.String()).Str("target", ev.Target.Name).Msg("dispatcher closed, alert dropped")
		return
	}
	d.pending.Add(1)
	d.pendingMu.Unlock()

	go func() {
		defer d.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.Send(ctx, ev)
	}()
}

// Close stops accepting new events and waits for in-flight deliveries.
// Each delivery is bounded by the dispatcher timeout.
func (d *Dispatcher) Close() {
	d.pendingMu.Lock()
	d.closed = true
	d.pendingMu.Unlock()
	d.pending.Wait()
}
