// Package metrics exposes Prometheus collectors for job polling.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/cristianoliveira/job-intray/internal/jobtype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "job_intray"

// Metrics implements jobs.Recorder on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	polls      *prometheus.CounterVec
	pollErrors *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	active     prometheus.Gauge
}

var _ jobs.Recorder = (*Metrics)(nil)

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Job status polls issued.",
		}, []string{"job_type"}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Job status requests that failed at the transport level.",
		}, []string{"job_type"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_outcomes_total",
			Help:      "Tracked jobs by terminal outcome.",
		}, []string{"job_type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from claim to terminal outcome.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"job_type"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently registered in the notification store.",
		}),
	}
	m.registry.MustRegister(m.polls, m.pollErrors, m.outcomes, m.duration, m.active)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PollStarted counts one poll.
func (m *Metrics) PollStarted(jobType string) {
	m.polls.WithLabelValues(Normalize(jobType)).Inc()
}

// PollFailed counts one failed status request.
func (m *Metrics) PollFailed(jobType string) {
	m.pollErrors.WithLabelValues(Normalize(jobType)).Inc()
}

// JobResolved counts a terminal outcome.
func (m *Metrics) JobResolved(jobType string, result jobs.Result, elapsed time.Duration) {
	t := Normalize(jobType)
	m.outcomes.WithLabelValues(t, string(result)).Inc()
	m.duration.WithLabelValues(t).Observe(elapsed.Seconds())
}

// SetActiveJobs records the number of registered jobs.
func (m *Metrics) SetActiveJobs(n int) {
	m.active.Set(float64(n))
}

// Normalize collapses per-resource job types so label cardinality stays bounded.
func Normalize(jobType string) string {
	switch {
	case jobType == "":
		return "untyped"
	case strings.HasPrefix(jobType, jobtype.StatementProcessingPrefix):
		return strings.TrimSuffix(jobtype.StatementProcessingPrefix, "-")
	default:
		return jobType
	}
}
