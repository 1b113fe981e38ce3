// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for server, fan-out and client reader.

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/unixbridge/api"
)

const namespace = "unixbridge"

// Metrics holds the bridge collectors.
type Metrics struct {
	AcceptedTotal     prometheus.Counter
	AcceptErrorsTotal prometheus.Counter
	ActiveClients     prometheus.Gauge
	EvictionsTotal    *prometheus.CounterVec
	BroadcastBytes    prometheus.Counter
	PulledBytes       prometheus.Counter
	PullsTotal        *prometheus.CounterVec
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// NewMetrics creates and registers the bridge metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "accepted_total",
			Help:      "Total number of accepted client connections.",
		}),
		AcceptErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "accept_errors_total",
			Help:      "Total number of failed accept attempts.",
		}),
		ActiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_clients",
			Help:      "Number of client connections currently registered.",
		}),
		EvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "evictions_total",
			Help:      "Clients dropped by the fan-out, by reason.",
		}, []string{"reason"}),
		BroadcastBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "bytes_total",
			Help:      "Total payload bytes handed to the fan-out.",
		}),
		PulledBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "pulled_bytes_total",
			Help:      "Total bytes delivered by the client reader.",
		}),
		PullsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "pulls_total",
			Help:      "Pull outcomes of the client reader, by flow result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.AcceptedTotal,
		m.AcceptErrorsTotal,
		m.ActiveClients,
		m.EvictionsTotal,
		m.BroadcastBytes,
		m.PulledBytes,
		m.PullsTotal,
	)
	return m
}

// ClientAccepted records a successful accept.
func (m *Metrics) ClientAccepted() {
	if m == nil {
		return
	}
	m.AcceptedTotal.Inc()
	m.ActiveClients.Inc()
}

// ClientClosed records a registered client being closed.
func (m *Metrics) ClientClosed() {
	if m == nil {
		return
	}
	m.ActiveClients.Dec()
}

// AcceptFailed records a failed accept.
func (m *Metrics) AcceptFailed() {
	if m == nil {
		return
	}
	m.AcceptErrorsTotal.Inc()
}

// ClientEvicted records a fan-out removal.
func (m *Metrics) ClientEvicted(reason string) {
	if m == nil {
		return
	}
	m.EvictionsTotal.WithLabelValues(reason).Inc()
}

// Broadcast records n payload bytes entering the fan-out.
func (m *Metrics) Broadcast(n int) {
	if m == nil {
		return
	}
	m.BroadcastBytes.Add(float64(n))
}

// Pulled records the outcome of one pull and the bytes it delivered.
func (m *Metrics) Pulled(flow api.FlowReturn, n int) {
	if m == nil {
		return
	}
	m.PullsTotal.WithLabelValues(flow.String()).Inc()
	if n > 0 {
		m.PulledBytes.Add(float64(n))
	}
}
