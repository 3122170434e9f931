package orchestration

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "remediator"

var (
	instancesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestration",
			Name:      "instances_finished_total",
			Help:      "Orchestration instances finished by terminal state",
		},
		[]string{"state"},
	)

	instanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestration",
			Name:      "instance_duration_seconds",
			Help:      "End-to-end orchestration instance duration",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"state"},
	)

	stepsReplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestration",
			Name:      "steps_replayed_total",
			Help:      "Steps skipped on recovery because their outcome was journaled",
		},
		[]string{"step"},
	)
)

func recordInstanceFinished(state string, duration time.Duration) {
	instancesFinished.WithLabelValues(state).Inc()
	instanceDuration.WithLabelValues(state).Observe(duration.Seconds())
}

func recordStepReplayed(step StepName) {
	stepsReplayed.WithLabelValues(string(step)).Inc()
}
