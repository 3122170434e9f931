package credentials

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "remediator"

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credentials",
			Name:      "cache_lookups_total",
			Help:      "Token cache lookups by resource and result",
		},
		[]string{"resource", "result"},
	)

	acquireFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credentials",
			Name:      "acquire_failures_total",
			Help:      "Failed token acquisitions from the identity provider",
		},
		[]string{"resource"},
	)
)

func recordCacheHit(resource string) {
	cacheLookups.WithLabelValues(resource, "hit").Inc()
}

func recordCacheMiss(resource string) {
	cacheLookups.WithLabelValues(resource, "miss").Inc()
}

func recordAcquireFailure(resource string) {
	acquireFailures.WithLabelValues(resource).Inc()
}
