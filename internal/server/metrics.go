package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xzax/axdns/internal/dns"
)

const metricsNamespace = "axdns"

// Metrics exports query handling counters to Prometheus. A nil *Metrics
// records nothing.
type Metrics struct {
	queries   *prometheus.CounterVec
	responses *prometheus.CounterVec
	truncated prometheus.Counter
	malformed *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewMetrics creates the query metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "DNS queries received, by transport",
		}, []string{"transport"}),
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "responses_total",
			Help:      "DNS responses sent, by transport and response code",
		}, []string{"transport", "rcode"}),
		truncated: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "responses_truncated_total",
			Help:      "UDP responses cut to 512 bytes with TC set",
		}),
		malformed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "malformed_requests_total",
			Help:      "Requests dropped because their header could not be read",
		}, []string{"transport"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_requests_total",
			Help:      "Datagrams dropped before parsing, by reason",
		}, []string{"reason"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "Time from receiving a query to having its response encoded",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .5, 1, 2.5},
		}, []string{"transport"}),
	}
}

func (m *Metrics) observeQuery(transport string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(transport).Inc()
}

func (m *Metrics) observeResponse(transport string, rcode dns.RCode, truncated bool, took time.Duration) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(transport, rcode.String()).Inc()
	if truncated {
		m.truncated.Inc()
	}
	m.latency.WithLabelValues(transport).Observe(took.Seconds())
}

func (m *Metrics) observeMalformed(transport string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(transport).Inc()
}

func (m *Metrics) observeDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
