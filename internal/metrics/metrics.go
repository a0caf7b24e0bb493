package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "askrelay"

// Metrics holds the relay's prometheus collectors.
type Metrics struct {
	Requests        *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ask_requests_total",
			Help:      "Total /ask requests by outcome",
		}, []string{"outcome"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of upstream chat completion calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.UpstreamLatency)
	}
	return m
}

// ObserveRequest counts one /ask request. Safe on a nil receiver.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the duration of one upstream call. Safe on a nil receiver.
func (m *Metrics) ObserveUpstream(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}
