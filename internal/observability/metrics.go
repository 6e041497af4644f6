package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	tasksCompleted  prometheus.Counter
	tasksFailed     *prometheus.CounterVec
	wavesCompleted  prometheus.Counter
	routesGenerated prometheus.Counter
	itemsConfirmed  prometheus.Counter
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warewave_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warewave_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	tasksCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warewave_tasks_completed_total",
		Help: "Pick tasks confirmed against inventory.",
	})
	tasksFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warewave_tasks_failed_total",
		Help: "Pick task attempts rejected, by reason.",
	}, []string{"reason"})
	wavesCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warewave_waves_completed_total",
		Help: "Waves whose orders all finished.",
	})
	routesGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warewave_routes_generated_total",
		Help: "Route plans built for operators.",
	})
	itemsConfirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warewave_items_confirmed_total",
		Help: "Quantity confirmed at task completion.",
	})
	registry.MustRegister(requests, duration, tasksCompleted, tasksFailed, wavesCompleted, routesGenerated, itemsConfirmed)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		tasksCompleted:  tasksCompleted,
		tasksFailed:     tasksFailed,
		wavesCompleted:  wavesCompleted,
		routesGenerated: routesGenerated,
		itemsConfirmed:  itemsConfirmed,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// TaskCompleted records one confirmed pick with its quantity.
func (m *Metrics) TaskCompleted(quantity float64) {
	if m == nil {
		return
	}
	m.tasksCompleted.Inc()
	m.itemsConfirmed.Add(quantity)
}

// TaskFailed records a rejected pick attempt.
func (m *Metrics) TaskFailed(reason string) {
	if m == nil {
		return
	}
	m.tasksFailed.WithLabelValues(reason).Inc()
}

// WaveCompleted records one finished wave.
func (m *Metrics) WaveCompleted() {
	if m == nil {
		return
	}
	m.wavesCompleted.Inc()
}

// RouteGenerated records one route plan build.
func (m *Metrics) RouteGenerated() {
	if m == nil {
		return
	}
	m.routesGenerated.Inc()
}

// Registerer exposes the registry for registering custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
