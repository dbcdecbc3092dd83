package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes recommendation engine metrics to Prometheus.
// All methods are safe on a nil *Recorder so callers can run without metrics.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Recorder struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	seedFailures    *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	returned        *prometheus.GaugeVec
	abAssignments   *prometheus.CounterVec
	evaluations     *prometheus.CounterVec
	trackerFailures prometheus.Counter
}

// New creates a recorder on its own registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seedrank_runs_total",
				Help: "Total number of orchestration runs by outcome",
			},
			[]string{"family", "status"},
		),
		seedFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seedrank_seed_failures_total",
				Help: "Seed algorithm failures isolated during runs",
			},
			[]string{"algorithm", "reason"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seedrank_run_duration_seconds",
				Help:    "Wall-clock duration of orchestration runs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"family"},
		),
		returned: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "seedrank_recommendations_returned",
				Help: "Recommendations returned by the latest run per family",
			},
			[]string{"family"},
		),
		abAssignments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seedrank_ab_assignments_total",
				Help: "A/B arm assignments",
			},
			[]string{"test", "arm"},
		),
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seedrank_evaluations_total",
				Help: "Performance records closed by outcome",
			},
			[]string{"outcome"},
		),
		trackerFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "seedrank_tracker_failures_total",
				Help: "Performance tracker hand-offs that failed",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// RecordRun records one finished orchestration run
func (r *Recorder) RecordRun(family, status string, d time.Duration, returned int) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(family, status).Inc()
	r.runDuration.WithLabelValues(family).Observe(d.Seconds())
	if status == "ok" || status == "partial" {
		r.returned.WithLabelValues(family).Set(float64(returned))
	}
}

// RecordSeedFailure records one isolated seed failure
func (r *Recorder) RecordSeedFailure(algorithm, reason string) {
	if r == nil {
		return
	}
	r.seedFailures.WithLabelValues(algorithm, reason).Inc()
}

// RecordAssignment records an A/B routing decision
func (r *Recorder) RecordAssignment(testID, arm string) {
	if r == nil {
		return
	}
	r.abAssignments.WithLabelValues(testID, arm).Inc()
}

// RecordEvaluation records a closed performance record
func (r *Recorder) RecordEvaluation(outcome string) {
	if r == nil {
		return
	}
	r.evaluations.WithLabelValues(outcome).Inc()
}

// RecordTrackerFailure records a failed performance hand-off
func (r *Recorder) RecordTrackerFailure() {
	if r == nil {
		return
	}
	r.trackerFailures.Inc()
}
