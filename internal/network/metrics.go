package network

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the request counters of all runner clients.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the network metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mango_runner_network_requests_total",
				Help: "Total number of runner network requests by outcome",
			},
			[]string{"runner", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mango_runner_network_request_duration_seconds",
				Help:    "Duration of runner network requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"runner"},
		),
	}
	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	return m
}

func (m *Metrics) observe(runner, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(runner, outcome).Inc()
	if d > 0 {
		m.RequestDuration.WithLabelValues(runner).Observe(d.Seconds())
	}
}
