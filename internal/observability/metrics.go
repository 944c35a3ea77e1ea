// Package observability exposes the Prometheus registry and shared metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry               *prometheus.Registry
	handler                http.Handler
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	integrityRepairs       prometheus.Counter
	notificationsDelivered *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	repairs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlas_ledger_integrity_repairs_total",
		Help: "Cached item aggregates repaired by the integrity sweep.",
	})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_notifications_delivered_total",
		Help: "Document event notifications delivered, by event kind.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, repairs, delivered)
	return &Metrics{
		registry:               registry,
		handler:                promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:          requests,
		requestDuration:        duration,
		integrityRepairs:       repairs,
		notificationsDelivered: delivered,
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

// IntegrityRepairs counts aggregate repairs performed by the sweep job.
func (m *Metrics) IntegrityRepairs() prometheus.Counter {
	if m == nil {
		return nil
	}
	return m.integrityRepairs
}

// NotificationsDelivered counts delivered document events by kind.
func (m *Metrics) NotificationsDelivered() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.notificationsDelivered
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
