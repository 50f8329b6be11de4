package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the room broker.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	roomsCreatedTotal     prometheus.Counter
	roomsDeletedTotal     prometheus.Counter
	upstreamFailuresTotal *prometheus.CounterVec
	sessionsRejectedTotal prometheus.Counter
	cacheLookupsTotal     *prometheus.CounterVec
	activeRooms           prometheus.Gauge
}

// New creates and registers Prometheus metrics for the broker.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broker_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broker_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		roomsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broker_rooms_created_total",
			Help: "Total number of rooms created or replaced",
		}),
		roomsDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broker_rooms_deleted_total",
			Help: "Total number of rooms deleted",
		}),
		upstreamFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_upstream_failures_total",
			Help: "Failed calls to live servers and the gateway, by operation",
		}, []string{"op"}),
		sessionsRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broker_sessions_rejected_total",
			Help: "Session cookies that failed signature verification",
		}),
		cacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_cache_lookups_total",
			Help: "TTL cache lookups by cache name and result (hit or miss)",
		}, []string{"cache", "result"}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "broker_active_rooms",
			Help: "Number of rooms in the directory",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.roomsCreatedTotal,
		m.roomsDeletedTotal,
		m.upstreamFailuresTotal,
		m.sessionsRejectedTotal,
		m.cacheLookupsTotal,
		m.activeRooms,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncRoomsCreated increments the rooms created counter.
func (m *Metrics) IncRoomsCreated() {
	m.roomsCreatedTotal.Inc()
}

// IncRoomsDeleted increments the rooms deleted counter.
func (m *Metrics) IncRoomsDeleted() {
	m.roomsDeletedTotal.Inc()
}

// IncUpstreamFailures increments the upstream failure counter for op.
func (m *Metrics) IncUpstreamFailures(op string) {
	m.upstreamFailuresTotal.WithLabelValues(op).Inc()
}

// IncSessionsRejected increments the rejected session cookie counter.
func (m *Metrics) IncSessionsRejected() {
	m.sessionsRejectedTotal.Inc()
}

// SetActiveRooms sets the active rooms gauge.
func (m *Metrics) SetActiveRooms(n int) {
	m.activeRooms.Set(float64(n))
}

// CacheObserver returns a hit/miss callback for the named cache, suitable
// for cache.WithObserver.
func (m *Metrics) CacheObserver(name string) func(hit bool) {
	hits := m.cacheLookupsTotal.WithLabelValues(name, "hit")
	misses := m.cacheLookupsTotal.WithLabelValues(name, "miss")
	return func(hit bool) {
		if hit {
			hits.Inc()
		} else {
			misses.Inc()
		}
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active rooms).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
