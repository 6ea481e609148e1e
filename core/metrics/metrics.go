package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "incidentboard"

// Metrics groups the board collectors. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	registry        *prometheus.Registry
	submitted       *prometheus.CounterVec
	rejected        prometheus.Counter
	activeClients   prometheus.Gauge
	evictedClients  prometheus.Counter
	slotRecordsSkip prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_submitted_total",
			Help:      "Incidents accepted through the report form, by severity.",
		}, []string{"severity"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_rejected_total",
			Help:      "Report submissions rejected because a required field was blank.",
		}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_active",
			Help:      "Client dashboards currently held in memory.",
		}),
		evictedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_evicted_total",
			Help:      "Idle client dashboards evicted by the sweeper.",
		}),
		slotRecordsSkip: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_records_skipped_total",
			Help:      "Persisted records skipped on load because they failed validation.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submitted, m.rejected, m.activeClients, m.evictedClients, m.slotRecordsSkip,
		m.httpRequests, m.httpDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncidentSubmitted(severity string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(severity).Inc()
}

func (m *Metrics) SubmissionRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) SetActiveClients(n int) {
	if m == nil {
		return
	}
	m.activeClients.Set(float64(n))
}

func (m *Metrics) ClientsEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictedClients.Add(float64(n))
}

func (m *Metrics) SlotRecordsSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.slotRecordsSkip.Add(float64(n))
}

func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	if duration < 0 {
		duration = 0
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
