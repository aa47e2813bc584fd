// Package metrics exposes Prometheus collectors for the evaluation
// server: submission counts, job outcomes and durations, wait-queue
// depth, and connected WebSocket sessions.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu  sync.RWMutex
	reg *prometheus.Registry

	submissionsTotal *prometheus.CounterVec
	jobsCompleted    *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
	wsSessions       prometheus.Gauge
)

// Submission outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

func init() {
	resetLocked()
}

// Reset clears and reinitializes all metrics collectors.
// Primarily used by tests to ensure clean state.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resetLocked()
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
func Handler() http.Handler {
	mu.RLock()
	registry := reg
	mu.RUnlock()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncSubmission counts one submission upload by job type and outcome.
func IncSubmission(jobType, outcome string) {
	mu.RLock()
	defer mu.RUnlock()
	if submissionsTotal != nil {
		submissionsTotal.WithLabelValues(jobType, outcome).Inc()
	}
}

// ObserveJobFinished records a job reaching a terminal status together
// with the time it spent processing.
func ObserveJobFinished(jobType, status string, duration time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	if jobsCompleted != nil {
		jobsCompleted.WithLabelValues(jobType, status).Inc()
	}
	if jobDuration != nil {
		jobDuration.WithLabelValues(jobType).Observe(durationSeconds(duration))
	}
}

// SetQueueDepth records the current length of the wait queue.
func SetQueueDepth(n int) {
	mu.RLock()
	defer mu.RUnlock()
	if queueDepth != nil {
		queueDepth.Set(float64(n))
	}
}

// SetWSSessions records the number of connected WebSocket sessions.
func SetWSSessions(n int) {
	mu.RLock()
	defer mu.RUnlock()
	if wsSessions != nil {
		wsSessions.Set(float64(n))
	}
}

func resetLocked() {
	registry := prometheus.NewRegistry()

	subs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crab",
		Subsystem: "server",
		Name:      "submissions_total",
		Help:      "Total submission uploads grouped by job type and outcome.",
	}, []string{"type", "outcome"})

	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crab",
		Subsystem: "server",
		Name:      "jobs_finished_total",
		Help:      "Total jobs that reached a terminal status, by job type.",
	}, []string{"type", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crab",
		Subsystem: "server",
		Name:      "job_duration_seconds",
		Help:      "Processing time of evaluation jobs by type.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
	}, []string{"type"})

	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "crab",
		Subsystem: "server",
		Name:      "queue_depth",
		Help:      "Jobs currently sitting in the wait queue.",
	})

	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "crab",
		Subsystem: "server",
		Name:      "websocket_sessions",
		Help:      "Currently connected WebSocket sessions.",
	})

	registry.MustRegister(subs, finished, duration, depth, sessions)

	reg = registry
	submissionsTotal = subs
	jobsCompleted = finished
	jobDuration = duration
	queueDepth = depth
	wsSessions = sessions
}

func durationSeconds(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return d.Seconds()
}
