package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	expiring prometheus.Gauge
	resynced prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against registerer. A nil registerer
// uses the default Prometheus registerer, registered once per process.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts a tracker for job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records duration and outcome and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetExpiring publishes the number of batches found by the last expiry scan.
func (m *Metrics) SetExpiring(count int) {
	if m == nil {
		return
	}
	m.expiring.Set(float64(count))
}

// AddResynced counts aggregates rebuilt by the resync job.
func (m *Metrics) AddResynced(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.resynced.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_jobs_total",
			Help: "Total job executions partitioned by job name and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_jobs_failures_total",
			Help: "Total failures observed for background jobs.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_job_duration_seconds",
			Help:    "Duration in seconds of background job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		expiring: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_expiring_batches",
			Help: "Batches with stock expiring within the alert window at the last scan.",
		}),
		resynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_stock_aggregates_resynced_total",
			Help: "Product unit aggregates rebuilt from batch sums.",
		}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.expiring, m.resynced)
	return m
}
