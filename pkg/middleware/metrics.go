package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "devserve"

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Mount lookup results recorded by ObserveMount.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
)

// Metrics holds the server's Prometheus collectors. All methods are safe on
// a nil *Metrics, which records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	mountRequests   *prometheus.CounterVec
	reloadSessions  prometheus.Gauge
	reloadsTotal    prometheus.Counter
	reloadDrops     prometheus.Counter
	watchEvents     prometheus.Counter
	watchBatches    prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{Registry: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Total HTTP requests by route pattern and status code",
		}, []string{"route", "code"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		mountRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "mount_requests_total",
			Help:      "Static requests by mount prefix and lookup result",
		}, []string{"mount", "result"}),

		reloadSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "reload_sessions",
			Help:      "Number of connected live reload sessions",
		}),

		reloadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reloads_total",
			Help:      "Total reload messages delivered to sessions",
		}),

		reloadDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reload_dropped_sessions_total",
			Help:      "Sessions dropped because a reload could not be delivered",
		}),

		watchEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "watch_events_total",
			Help:      "Raw filesystem events merged into reload batches",
		}),

		watchBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "watch_batches_total",
			Help:      "Debounced change batches emitted by the watcher",
		}),
	}
}

// Handler records request count and duration, labelled by the chi route
// pattern so static paths do not explode label cardinality.
func (m *Metrics) Handler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := responseStatus(ww, r)
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

// ObserveMount records a static lookup against the mount with prefix.
func (m *Metrics) ObserveMount(prefix, result string) {
	if m == nil {
		return
	}
	m.mountRequests.WithLabelValues(prefix, result).Inc()
}

// SetReloadSessions records the number of connected reload sessions.
func (m *Metrics) SetReloadSessions(n int) {
	if m == nil {
		return
	}
	m.reloadSessions.Set(float64(n))
}

// ObserveBroadcast records one reload fan-out.
func (m *Metrics) ObserveBroadcast(delivered, dropped int) {
	if m == nil {
		return
	}
	m.reloadsTotal.Add(float64(delivered))
	m.reloadDrops.Add(float64(dropped))
}

// ObserveWatchBatch records a debounced batch built from events raw events.
func (m *Metrics) ObserveWatchBatch(events int) {
	if m == nil {
		return
	}
	m.watchBatches.Inc()
	m.watchEvents.Add(float64(events))
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseStatus returns the status written through ww. Nothing is written
// through ww once a WebSocket upgrade hijacks the connection, so an upgrade
// request with no status recorded reports 101.
func responseStatus(ww chimw.WrapResponseWriter, r *http.Request) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	if ww.BytesWritten() == 0 && r.Header.Get("Upgrade") != "" {
		return http.StatusSwitchingProtocols
	}
	return http.StatusOK
}
