package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Metrics variables - these will be initialized by InitMetrics
	ConnectionsTotal     prometheus.Counter
	ActiveConnections    prometheus.Gauge
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	ResponseSizeBytes    prometheus.Histogram
	TimeoutsTotal        prometheus.Counter
	RateLimitExceeded    *prometheus.CounterVec
	ErrorsTotal          *prometheus.CounterVec
	TransportErrorsTotal *prometheus.CounterVec
)

// InitMetrics initializes metrics with a specific registry
func InitMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		return fmt.Errorf("registry cannot be nil")
	}

	factory := promauto.With(reg)

	ConnectionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "webserver_connections_total",
			Help: "Total number of accepted connections",
		},
	)

	ActiveConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "webserver_active_connections",
			Help: "Number of currently open connections",
		},
	)

	RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webserver_requests_total",
			Help: "Total number of requests served",
		},
		[]string{"status"},
	)

	RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webserver_request_duration_seconds",
			Help:    "Duration of requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	ResponseSizeBytes = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name: "webserver_response_size_bytes",
			Help: "Size of response bodies in bytes",
			Buckets: []float64{
				100, 500, 1000, 5000, 10000, 50000, 100000,
			},
		},
	)

	TimeoutsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "webserver_timeouts_total",
			Help: "Total number of calls abandoned after their deadline",
		},
	)

	RateLimitExceeded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webserver_rate_limit_exceeded_total",
			Help: "Total number of requests that exceeded rate limits",
		},
		[]string{"type"},
	)

	ErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webserver_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)

	TransportErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webserver_transport_errors_total",
			Help: "Total number of connection I/O errors by class",
		},
		[]string{"class"},
	)

	return nil
}

// Helper functions for recording metrics. They are no-ops until InitMetrics
// has been called.

// RecordConnectionOpened records an accepted connection
func RecordConnectionOpened() {
	if ConnectionsTotal == nil {
		return
	}
	ConnectionsTotal.Inc()
	ActiveConnections.Inc()
}

// RecordConnectionClosed records a closed connection
func RecordConnectionClosed() {
	if ActiveConnections == nil {
		return
	}
	ActiveConnections.Dec()
}

// RecordRequest records the outcome and duration of a request
func RecordRequest(method string, status int, duration time.Duration) {
	if RequestsTotal == nil {
		return
	}
	RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordResponseSize records the size of a response body
func RecordResponseSize(sizeBytes int) {
	if ResponseSizeBytes == nil {
		return
	}
	ResponseSizeBytes.Observe(float64(sizeBytes))
}

// RecordTimeout records a call that hit its deadline
func RecordTimeout() {
	if TimeoutsTotal == nil {
		return
	}
	TimeoutsTotal.Inc()
}

// RecordRateLimit records a request rejected or held back by a limiter
func RecordRateLimit(limiterType string) {
	if RateLimitExceeded == nil {
		return
	}
	RateLimitExceeded.WithLabelValues(limiterType).Inc()
}

// RecordError records an error by type
func RecordError(errorType string) {
	if ErrorsTotal == nil {
		return
	}
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordTransportError records a connection I/O error by class
func RecordTransportError(class string) {
	if TransportErrorsTotal == nil {
		return
	}
	TransportErrorsTotal.WithLabelValues(class).Inc()
}
