// Package metrics exposes Prometheus instrumentation for the arena server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the engine.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	submissionsTotal     prometheus.Counter
	judgementsTotal      prometheus.Counter
	scoreUpdatesTotal    prometheus.Counter
	groundTruthHitsTotal prometheus.Counter
	conflictsTotal       prometheus.Counter
	assignmentsTotal     prometheus.Counter
	idleJudges           prometheus.Gauge
	queueDepth           prometheus.Gauge
}

// New creates and registers Prometheus metrics for the engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		submissionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_submissions_total",
			Help: "Total number of submissions accepted",
		}),
		judgementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_judgements_total",
			Help: "Total number of verdicts recorded on submissions",
		}),
		scoreUpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_score_updates_total",
			Help: "Total number of score update units executed",
		}),
		groundTruthHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_ground_truth_hits_total",
			Help: "Total number of submissions auto-judged from ground truth",
		}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_ground_truth_conflicts_total",
			Help: "Total number of contradictory ground-truth verdicts detected",
		}),
		assignmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_judge_assignments_total",
			Help: "Total number of jobs assigned to live judges",
		}),
		idleJudges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_idle_judges",
			Help: "Number of connected judges without an assignment",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_judge_queue_depth",
			Help: "Number of jobs waiting for an idle judge",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.submissionsTotal,
		m.judgementsTotal,
		m.scoreUpdatesTotal,
		m.groundTruthHitsTotal,
		m.conflictsTotal,
		m.assignmentsTotal,
		m.idleJudges,
		m.queueDepth,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

// IncSubmissions increments the accepted submission counter.
func (m *Metrics) IncSubmissions() { m.submissionsTotal.Inc() }

// IncJudgements increments the recorded verdict counter.
func (m *Metrics) IncJudgements() { m.judgementsTotal.Inc() }

// IncScoreUpdates increments the executed score unit counter.
func (m *Metrics) IncScoreUpdates() { m.scoreUpdatesTotal.Inc() }

// IncGroundTruthHits increments the ground-truth auto-judge counter.
func (m *Metrics) IncGroundTruthHits() { m.groundTruthHitsTotal.Inc() }

// IncConflicts increments the contradictory verdict counter.
func (m *Metrics) IncConflicts() { m.conflictsTotal.Inc() }

// IncAssignments increments the judge assignment counter.
func (m *Metrics) IncAssignments() { m.assignmentsTotal.Inc() }

// SetIdleJudges sets the idle judge gauge.
func (m *Metrics) SetIdleJudges(n int) { m.idleJudges.Set(float64(n)) }

// SetQueueDepth sets the dispatch queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) { m.queueDepth.Set(float64(n)) }

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
