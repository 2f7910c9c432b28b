package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/kindrid-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	slotWriteErrors  prometheus.Counter
	realtimeClients  prometheus.Gauge

	requestCount         uint64
	requestDurationTotal uint64
	transitionCount      uint64
	slotFailureCount     uint64
	startedAt            time.Time
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kindrid_photo_transitions_total",
		Help: "Photo workflow transitions by resulting status",
	}, []string{"operation", "status"})

	analysisDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kindrid_analysis_duration_seconds",
		Help:    "Time spent waiting on the simulated analyzer",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 3, 5, 10},
	}, []string{"operation", "outcome"})

	slotWriteErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kindrid_slot_write_failures_total",
		Help: "Failed writes of the photo list to the durable slot",
	})

	realtimeClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kindrid_realtime_clients",
		Help: "Connected websocket subscribers",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitions, analysisDuration, slotWriteErrors, realtimeClients, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		transitions:      transitions,
		analysisDuration: analysisDuration,
		slotWriteErrors:  slotWriteErrors,
		realtimeClients:  realtimeClients,
		startedAt:        time.Now(),
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordTransition counts a workflow operation that left the photo in status.
func (m *MetricsService) RecordTransition(operation string, status models.PhotoStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, string(status)).Inc()
	atomic.AddUint64(&m.transitionCount, 1)
}

// ObserveAnalysis records how long an analyzer call took.
func (m *MetricsService) ObserveAnalysis(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.analysisDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// RecordSlotWriteFailure counts a swallowed persistence failure.
func (m *MetricsService) RecordSlotWriteFailure(error) {
	if m == nil {
		return
	}
	m.slotWriteErrors.Inc()
	atomic.AddUint64(&m.slotFailureCount, 1)
}

// SetRealtimeClients publishes the current websocket subscriber count.
func (m *MetricsService) SetRealtimeClients(n int) {
	if m == nil {
		return
	}
	m.realtimeClients.Set(float64(n))
}

// Snapshot returns aggregated metrics for the readiness endpoint.
func (m *MetricsService) Snapshot() models.SystemSnapshot {
	if m == nil {
		return models.SystemSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		TransitionsTotal:         atomic.LoadUint64(&m.transitionCount),
		SlotWriteFailures:        atomic.LoadUint64(&m.slotFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		UptimeSeconds:            time.Since(m.startedAt).Seconds(),
		GeneratedAt:              time.Now().UTC(),
	}
}
