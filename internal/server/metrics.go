package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the server and the sweeper.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec   // noteshare_http_requests_total{route,status}
	RequestDuration *prometheus.HistogramVec // noteshare_http_request_duration_seconds{route}
	AuthFailures    *prometheus.CounterVec   // noteshare_auth_failures_total{reason}

	// Transfer metrics
	BytesUploaded prometheus.Counter // noteshare_bytes_uploaded_total
	BytesServed   prometheus.Counter // noteshare_bytes_served_total
	Deduplicated  prometheus.Counter // noteshare_uploads_deduplicated_total

	// Sweeper metrics
	SweepRuns     prometheus.Counter   // noteshare_sweep_runs_total
	SweepPurged   prometheus.Counter   // noteshare_sweep_purged_total
	SweepFailed   prometheus.Counter   // noteshare_sweep_failed_total
	SweepDuration prometheus.Histogram // noteshare_sweep_duration_seconds
}

// NewMetrics registers all collectors with registry. Each call needs its own
// registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noteshare_http_requests_total",
			Help: "Total HTTP requests by route and status",
		}, []string{"route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "noteshare_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noteshare_auth_failures_total",
			Help: "Rejected request credentials by reason",
		}, []string{"reason"}),

		BytesUploaded: f.NewCounter(prometheus.CounterOpts{
			Name: "noteshare_bytes_uploaded_total",
			Help: "Total bytes accepted by uploads",
		}),

		BytesServed: f.NewCounter(prometheus.CounterOpts{
			Name: "noteshare_bytes_served_total",
			Help: "Total bytes of stored files served",
		}),

		Deduplicated: f.NewCounter(prometheus.CounterOpts{
			Name: "noteshare_uploads_deduplicated_total",
			Help: "Uploads answered with an already stored file",
		}),

		SweepRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "noteshare_sweep_runs_total",
			Help: "Completed expiration sweeps",
		}),

		SweepPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "noteshare_sweep_purged_total",
			Help: "Expired files purged by the sweeper",
		}),

		SweepFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "noteshare_sweep_failed_total",
			Help: "Expired files the sweeper failed to purge",
		}),

		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "noteshare_sweep_duration_seconds",
			Help:    "Expiration sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordRequest records one finished request.
func (m *Metrics) RecordRequest(route, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration)
}

// RecordSweep implements ns.SweepRecorder.
func (m *Metrics) RecordSweep(purged, failed int, duration time.Duration) {
	m.SweepRuns.Inc()
	m.SweepPurged.Add(float64(purged))
	m.SweepFailed.Add(float64(failed))
	m.SweepDuration.Observe(duration.Seconds())
}
