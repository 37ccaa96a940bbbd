// Package observability zbiera metryki Prometheus synchronizacji i API.
// Wszystkie metody są bezpieczne na nil, więc komponenty działają bez metryk.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	pushOps         *prometheus.CounterVec
	pulls           *prometheus.CounterVec
	pending         prometheus.Gauge
	dead            prometheus.Gauge
	realtimeEvents  *prometheus.CounterVec
	decrements      *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		pushOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos2cloud_push_operations_total",
			Help: "Operacje outboxa wysłane do chmury wg wyniku.",
		}, []string{"table", "result"}),
		pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos2cloud_pulls_total",
			Help: "Pobrania stanu z chmury wg wyniku.",
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos2cloud_pending_operations",
			Help: "Liczba operacji czekających na wysłanie.",
		}),
		dead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos2cloud_dead_operations",
			Help: "Liczba operacji odłożonych po przekroczeniu limitu prób.",
		}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos2cloud_realtime_events_total",
			Help: "Zdarzenia kanału zmian wg tabeli, typu i decyzji.",
		}, []string{"table", "type", "outcome"}),
		decrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos2cloud_stock_decrements_total",
			Help: "Dekrementacje stanu wg ścieżki.",
		}, []string{"path"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos2cloud_http_requests_total",
			Help: "Żądania HTTP wg route i statusu.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos2cloud_http_request_duration_seconds",
			Help:    "Czas obsługi żądań HTTP wg route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	registry.MustRegister(m.pushOps, m.pulls, m.pending, m.dead, m.realtimeEvents,
		m.decrements, m.requestsTotal, m.requestDuration)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler dla endpointu /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func (m *Metrics) PushOp(table, result string) {
	if m == nil {
		return
	}
	m.pushOps.WithLabelValues(table, result).Inc()
}

func (m *Metrics) Pull(result string) {
	if m == nil {
		return
	}
	m.pulls.WithLabelValues(result).Inc()
}

func (m *Metrics) QueueDepth(pending, dead int64) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.dead.Set(float64(dead))
}

func (m *Metrics) RealtimeEvent(table, typ, outcome string) {
	if m == nil {
		return
	}
	m.realtimeEvents.WithLabelValues(table, typ, outcome).Inc()
}

func (m *Metrics) Decrement(path string) {
	if m == nil {
		return
	}
	m.decrements.WithLabelValues(path).Inc()
}

// Middleware mierzy żądania HTTP po wzorcu route chi.
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

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush: SSE potrzebuje http.Flusher przez recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
