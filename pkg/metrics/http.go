package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics provides observability for the HTTP adapter.
//
// This interface is optional - if not provided to the adapter, a no-op
// implementation is used with zero overhead.
type HTTPMetrics interface {
	// RecordRequest records a completed exchange with its method,
	// response status and duration.
	RecordRequest(method string, status int, duration time.Duration)

	// RecordBytesStreamed records body bytes written to clients.
	RecordBytesStreamed(bytes int64)

	// RecordAuthFailure increments the Digest authentication failure
	// counter.
	RecordAuthFailure()

	// RecordNonceIssued increments the issued-nonce counter.
	RecordNonceIssued()

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections
	// counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()
}

// httpMetrics is the Prometheus implementation of HTTPMetrics.
type httpMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	bytesStreamed       prometheus.Counter
	authFailures        prometheus.Counter
	noncesIssued        prometheus.Counter
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics instance, or a
// no-op one when InitRegistry was never called.
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() {
		return &NoopHTTPMetrics{}
	}

	reg := GetRegistry()

	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dhttpd_requests_total",
				Help: "Total number of HTTP exchanges by method and status",
			},
			[]string{"method", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dhttpd_request_duration_seconds",
				Help: "Duration of HTTP exchanges in seconds",
				Buckets: []float64{
					0.001,
					0.005,
					0.01,
					0.05,
					0.1,
					0.5,
					1.0,
					5.0,
					30.0,
				},
			},
			[]string{"method"},
		),
		bytesStreamed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dhttpd_body_bytes_total",
				Help: "Total body bytes written to clients",
			},
		),
		authFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dhttpd_auth_failures_total",
				Help: "Total Digest authentication failures",
			},
		),
		noncesIssued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dhttpd_nonces_issued_total",
				Help: "Total authentication nonces issued",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dhttpd_active_connections",
				Help: "Current number of active connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dhttpd_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dhttpd_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordBytesStreamed(bytes int64) {
	m.bytesStreamed.Add(float64(bytes))
}

func (m *httpMetrics) RecordAuthFailure() {
	m.authFailures.Inc()
}

func (m *httpMetrics) RecordNonceIssued() {
	m.noncesIssued.Inc()
}

func (m *httpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

// NoopHTTPMetrics is a no-op implementation of HTTPMetrics.
type NoopHTTPMetrics struct{}

func (NoopHTTPMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (NoopHTTPMetrics) RecordBytesStreamed(bytes int64)                                 {}
func (NoopHTTPMetrics) RecordAuthFailure()                                              {}
func (NoopHTTPMetrics) RecordNonceIssued()                                              {}
func (NoopHTTPMetrics) SetActiveConnections(count int32)                                {}
func (NoopHTTPMetrics) RecordConnectionAccepted()                                       {}
func (NoopHTTPMetrics) RecordConnectionClosed()                                         {}
