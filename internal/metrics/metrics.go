// Package metrics defines the Prometheus collectors exported at /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dialer"

type Metrics struct {
	turns    *prometheus.CounterVec
	degraded *prometheus.CounterVec
	ended    *prometheus.CounterVec
	launched *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Webhook turns handled, by kind (greeting, reply, no_speech).",
		}, []string{"kind"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_total",
			Help:      "Turns served in degraded mode, by failed capability.",
		}, []string{"capability"}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_ended_total",
			Help:      "Conversations ended, by reason.",
		}, []string{"reason"}),
		launched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_launched_total",
			Help:      "Outbound call origination attempts, by result.",
		}, []string{"result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_seconds",
			Help:      "Latency of calls to external capabilities.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"capability"}),
	}
	reg.MustRegister(m.turns, m.degraded, m.ended, m.launched, m.latency)
	return m
}

func (m *Metrics) Turn(kind string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(kind).Inc()
}

func (m *Metrics) Degraded(capability string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(capability).Inc()
}

func (m *Metrics) Ended(reason string) {
	if m == nil {
		return
	}
	m.ended.WithLabelValues(reason).Inc()
}

func (m *Metrics) Launched(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.launched.WithLabelValues(result).Inc()
}

// Since records the time elapsed since start for capability.
func (m *Metrics) Since(capability string, start time.Time) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(capability).Observe(time.Since(start).Seconds())
}
