// Package metrics holds the Prometheus collectors for fetches, merges and
// the HTTP surface. A nil *Metrics records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notes"

// Fetch outcomes
const (
	OutcomeComplete = "complete"
	OutcomeCanceled = "canceled"
	OutcomeFailed   = "failed"
)

// Metrics groups every collector of the service
type Metrics struct {
	fetches        *prometheus.CounterVec
	eventsReceived prometheus.Counter
	duplicates     prometheus.Counter
	relayFailures  prometheus.Counter
	fetchDuration  prometheus.Histogram
	httpRequests   *prometheus.CounterVec
	sseConnections prometheus.Gauge
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Post fetches by outcome.",
		}, []string{"outcome"}),
		eventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Events received from relays during post fetches.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_dropped_total",
			Help:      "Events dropped because their id was already merged.",
		}),
		relayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_failures_total",
			Help:      "Relays that failed during a fetch.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time from opening a post stream to its end.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		sseConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_connections_active",
			Help:      "Open post streams.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.fetches, m.eventsReceived, m.duplicates, m.relayFailures,
		m.fetchDuration, m.httpRequests, m.sseConnections,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FetchDone records the outcome and duration of one post fetch
func (m *Metrics) FetchDone(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchDuration.Observe(took.Seconds())
}

// EventReceived counts an event taken off the merged stream
func (m *Metrics) EventReceived() {
	if m == nil {
		return
	}
	m.eventsReceived.Inc()
}

// DuplicateDropped counts an event whose id was already present
func (m *Metrics) DuplicateDropped() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// RelayFailed counts a relay error
func (m *Metrics) RelayFailed() {
	if m == nil {
		return
	}
	m.relayFailures.Inc()
}

// HTTPRequest counts a served request; status is the response code
func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, statusClass(status)).Inc()
}

// SSEConnected tracks an open post stream; call the returned func on close
func (m *Metrics) SSEConnected() (done func()) {
	if m == nil {
		return func() {}
	}
	m.sseConnections.Inc()
	return m.sseConnections.Dec
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
