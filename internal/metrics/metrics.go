// Package metrics provides Prometheus instrumentation for generation jobs
// and the relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ekisa-team/localgen/internal/generation"
)

const namespace = "localgen"

// Metrics holds the collectors of one process. It implements generation.Observer.
type Metrics struct {
	// JobsStarted counts streaming jobs created.
	JobsStarted prometheus.Counter

	// JobsFinished counts jobs by final state.
	JobsFinished *prometheus.CounterVec

	// ActiveJobs is 1 while a job is consuming output.
	ActiveJobs prometheus.Gauge

	// ChunksEmitted counts increments delivered to clients.
	ChunksEmitted prometheus.Counter

	// BytesEmitted counts bytes delivered to clients.
	BytesEmitted prometheus.Counter

	// StopRequests counts calls to the stop endpoint.
	StopRequests prometheus.Counter

	// JobDuration tracks wall time from job start to its terminal state.
	JobDuration *prometheus.HistogramVec

	// CompleteRequests counts synchronous generations by outcome.
	CompleteRequests *prometheus.CounterVec

	// RelaySessions counts relay sessions by outcome.
	RelaySessions *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		JobsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of streaming generation jobs started.",
		}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of streaming generation jobs by final state.",
		}, []string{"state"}),
		ActiveJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Number of generation jobs currently streaming.",
		}),
		ChunksEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_emitted_total",
			Help:      "Total number of text increments written to clients.",
		}),
		BytesEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_emitted_total",
			Help:      "Total number of bytes written to streaming clients.",
		}),
		StopRequests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_requests_total",
			Help:      "Total number of generation stop requests.",
		}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Streaming job duration in seconds by final state.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"state"}),
		CompleteRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "complete_requests_total",
			Help:      "Total number of synchronous generations by outcome.",
		}, []string{"outcome"}),
		RelaySessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sessions_total",
			Help:      "Total number of relay sessions by outcome.",
		}, []string{"outcome"}),
	}
}

// JobStarted implements generation.Observer.
func (m *Metrics) JobStarted() {
	m.JobsStarted.Inc()
	m.ActiveJobs.Inc()
}

// ChunkEmitted implements generation.Observer.
func (m *Metrics) ChunkEmitted(bytes int) {
	m.ChunksEmitted.Inc()
	m.BytesEmitted.Add(float64(bytes))
}

// JobFinished implements generation.Observer.
func (m *Metrics) JobFinished(state generation.State, _ int64, elapsed time.Duration) {
	m.ActiveJobs.Dec()
	m.JobsFinished.WithLabelValues(state.String()).Inc()
	m.JobDuration.WithLabelValues(state.String()).Observe(elapsed.Seconds())
}

// StopRequested implements generation.Observer.
func (m *Metrics) StopRequested() {
	m.StopRequests.Inc()
}

// CompleteFinished records a synchronous generation outcome.
func (m *Metrics) CompleteFinished(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.CompleteRequests.WithLabelValues(outcome).Inc()
}

// RelaySession records how a relay session ended.
func (m *Metrics) RelaySession(outcome string) {
	m.RelaySessions.WithLabelValues(outcome).Inc()
}

// Handler exposes the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
