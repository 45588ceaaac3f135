// Package metrics exposes session and push-connection counters in the
// Prometheus format.
//
// Metrics implements both session.Observer and realtime.Observer so the
// App can hand one value to each component. Collectors live on a private
// registry; Handler serves only fleetdash series plus the Go/process
// collectors.
package metrics

import (
	"net/http"
	"time"

	"fleetdash/cmd/internal/auth/session"
	"fleetdash/cmd/internal/realtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleetdash"

var allStates = []realtime.State{
	realtime.StateIdle,
	realtime.StateConnecting,
	realtime.StateOpen,
	realtime.StateClosed,
	realtime.StateError,
}

// Metrics owns the collectors.
type Metrics struct {
	reg *prometheus.Registry

	logins      *prometheus.CounterVec
	validations *prometheus.CounterVec
	refreshes   *prometheus.CounterVec

	rtState       *prometheus.GaugeVec
	rtTransitions *prometheus.CounterVec
	rtReconnects  prometheus.Counter
	rtBackoff     prometheus.Histogram
	rtFrames      *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

var (
	_ session.Observer  = (*Metrics)(nil)
	_ realtime.Observer = (*Metrics)(nil)
)

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Login family calls by operation and result.",
		}, []string{"op", "result"}),

		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "validations_total",
			Help:      "Session validations by outcome.",
		}, []string{"outcome"}),

		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Token refresh attempts by result (ok, rejected, transport).",
		}, []string{"result"}),

		rtState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rt",
			Name:      "state",
			Help:      "1 for the current push connection state, 0 otherwise.",
		}, []string{"state"}),

		rtTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rt",
			Name:      "transitions_total",
			Help:      "Push connection state transitions by target state.",
		}, []string{"to"}),

		rtReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rt",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect timers scheduled after a failed or lost connection.",
		}),

		rtBackoff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rt",
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay chosen for scheduled reconnects.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60},
		}),

		rtFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rt",
			Name:      "frames_total",
			Help:      "Decoded inbound frames by type.",
		}, []string{"type"}),

		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Cache keys invalidated by push events.",
		}, []string{"key"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins,
		m.validations,
		m.refreshes,
		m.rtState,
		m.rtTransitions,
		m.rtReconnects,
		m.rtBackoff,
		m.rtFrames,
		m.invalidations,
	)

	m.setState(realtime.StateIdle)
	return m
}

// Registry returns the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// LoginFinished implements session.Observer.
func (m *Metrics) LoginFinished(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.logins.WithLabelValues(op, result).Inc()
}

// SessionValidated implements session.Observer.
func (m *Metrics) SessionValidated(outcome session.Outcome) {
	m.validations.WithLabelValues(string(outcome)).Inc()
}

// RefreshFinished implements session.Observer.
func (m *Metrics) RefreshFinished(result string) {
	m.refreshes.WithLabelValues(result).Inc()
}

// StateChanged implements realtime.Observer.
func (m *Metrics) StateChanged(from, to realtime.State) {
	m.rtTransitions.WithLabelValues(string(to)).Inc()
	m.setState(to)
}

// ReconnectScheduled implements realtime.Observer.
func (m *Metrics) ReconnectScheduled(attempt int, delay time.Duration) {
	m.rtReconnects.Inc()
	m.rtBackoff.Observe(delay.Seconds())
}

// FrameReceived implements realtime.Observer.
func (m *Metrics) FrameReceived(frameType string) {
	m.rtFrames.WithLabelValues(frameType).Inc()
}

// Invalidated implements realtime.Observer.
func (m *Metrics) Invalidated(keys []string) {
	for _, k := range keys {
		m.invalidations.WithLabelValues(k).Inc()
	}
}

func (m *Metrics) setState(current realtime.State) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.rtState.WithLabelValues(string(s)).Set(v)
	}
}
