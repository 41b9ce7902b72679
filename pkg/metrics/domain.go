package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_optimizer_cache_reads_total",
			Help: "Total number of schema cache reads by level and outcome.",
		},
		[]string{"level", "outcome"},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_optimizer_validation_rejections_total",
			Help: "Total number of statements the validator turned away, by reason.",
		},
		[]string{"reason"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_optimizer_pipeline_stage_duration_seconds",
			Help:    "Natural query pipeline stage latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)
	contextRebuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "db_optimizer_context_rebuilds_total",
			Help: "Total number of full schema snapshot rebuilds.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		cacheReadsTotal,
		validationRejectionsTotal,
		pipelineStageDurationSeconds,
		contextRebuildsTotal,
	)
}

// ObserveCacheRead records one cache lookup for a level.
func ObserveCacheRead(level string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheReadsTotal.WithLabelValues(level, outcome).Inc()
}

// IncValidationRejection counts one rejected statement.
func IncValidationRejection(reason string) {
	validationRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObservePipelineStage records the latency of one pipeline stage.
func ObservePipelineStage(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// IncContextRebuild counts one completed snapshot rebuild.
func IncContextRebuild() {
	contextRebuildsTotal.Inc()
}
