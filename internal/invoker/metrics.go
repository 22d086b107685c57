package invoker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageRuns counts stage executions.
	// Labels: stage (scanner, analyzer), result (success, error)
	StageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchd",
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Total number of pipeline stage executions",
		},
		[]string{"stage", "result"},
	)

	// StageDuration tracks how long stage executions take.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatchd",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stage executions in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Invocations counts asynchronous stage triggers.
	// Labels: stage, transport (local, lambda), result (success, error)
	Invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchd",
			Subsystem: "pipeline",
			Name:      "invocations_total",
			Help:      "Total number of asynchronous stage invocations",
		},
		[]string{"stage", "transport", "result"},
	)
)

// recordStageRun records a stage outcome and its duration.
func recordStageRun(stage string, seconds float64, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StageRuns.WithLabelValues(stage, result).Inc()
	StageDuration.WithLabelValues(stage).Observe(seconds)
}
