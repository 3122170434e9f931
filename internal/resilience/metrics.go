package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

const namespace = "remediator"

var (
	callAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "call_attempts_total",
			Help:      "Outbound call attempts by target and result",
		},
		[]string{"target", "result"},
	)

	shortCircuits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "short_circuits_total",
			Help:      "Calls rejected by an open circuit breaker",
		},
		[]string{"target"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per target (0=closed, 1=half-open, 2=open)",
		},
		[]string{"target"},
	)
)

func recordAttempt(target, result string) {
	callAttempts.WithLabelValues(target, result).Inc()
}

func recordShortCircuit(target string) {
	shortCircuits.WithLabelValues(target).Inc()
}

func recordBreakerState(target string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	breakerState.WithLabelValues(target).Set(v)
}
