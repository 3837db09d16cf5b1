package worker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks scheduled job execution.
//
// Exposed series:
//   - worker_job_runs_total{status}: started/success/failure counts
//   - worker_job_duration_seconds: job duration histogram
//   - worker_job_last_success_timestamp: Unix time of the last clean run
type Metrics struct {
	jobRunsTotal         *prometheus.CounterVec
	jobDurationSeconds   prometheus.Histogram
	lastSuccessTimestamp prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the process-wide worker metrics. promauto registration
// happens once; repeated calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			jobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "worker_job_runs_total",
				Help: "Total scheduled pipeline job runs by status",
			}, []string{"status"}),

			jobDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "worker_job_duration_seconds",
				Help:    "Duration of scheduled pipeline jobs in seconds",
				Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
			}),

			lastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "worker_job_last_success_timestamp",
				Help: "Unix timestamp of the last successful scheduled run",
			}),
		}
	})
	return metricsInstance
}

// RecordJobRun counts one job transition: "started", "success", or "failure".
func (m *Metrics) RecordJobRun(status string) {
	m.jobRunsTotal.WithLabelValues(status).Inc()
}

// RecordJobDuration observes a finished job's wall time.
func (m *Metrics) RecordJobDuration(d time.Duration) {
	m.jobDurationSeconds.Observe(d.Seconds())
}

// RecordLastSuccess stamps the last-success gauge with the current time.
func (m *Metrics) RecordLastSuccess() {
	m.lastSuccessTimestamp.SetToCurrentTime()
}
