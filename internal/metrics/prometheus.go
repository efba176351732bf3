package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "icwatch"

// Prometheus implements Collector on a dedicated prometheus.Registry.
type Prometheus struct {
	reg *prometheus.Registry

	heartbeats  *prometheus.CounterVec
	pings       *prometheus.CounterVec
	transitions *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	spotProbes  *prometheus.CounterVec
	clients     prometheus.Gauge
	expired     prometheus.Gauge
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates a collector with all series registered.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		reg: prometheus.NewRegistry(),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "heartbeats_total",
			Help:      "Heartbeat connections handled by the server, by result.",
		}, []string{"result"}),
		pings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "pings_total",
			Help:      "Heartbeats sent by the client, by success.",
		}, []string{"ok"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "transitions_total",
			Help:      "Online and offline transitions detected.",
		}, []string{"code"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "deliveries_total",
			Help:      "Alert deliveries by integration, code and success.",
		}, []string{"integration", "code", "ok"}),
		spotProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "spot",
			Name:      "probes_total",
			Help:      "Spot termination metadata queries by status.",
		}, []string{"status"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "clients",
			Help:      "Client names tracked by the liveness registry.",
		}),
		expired: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "clients_expired",
			Help:      "Tracked client names currently offline.",
		}),
	}
	p.reg.MustRegister(p.heartbeats, p.pings, p.transitions, p.alerts, p.spotProbes, p.clients, p.expired)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Prometheus) RecordHeartbeat(result string) {
	p.heartbeats.WithLabelValues(result).Inc()
}

func (p *Prometheus) RecordPing(ok bool) {
	p.pings.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

func (p *Prometheus) RecordTransition(code string) {
	p.transitions.WithLabelValues(code).Inc()
}

func (p *Prometheus) RecordAlert(integration, code string, ok bool) {
	p.alerts.WithLabelValues(integration, code, strconv.FormatBool(ok)).Inc()
}

func (p *Prometheus) RecordSpotProbe(status string) {
	p.spotProbes.WithLabelValues(status).Inc()
}

func (p *Prometheus) SetClients(total, expired int) {
	p.clients.Set(float64(total))
	p.expired.Set(float64(expired))
}
