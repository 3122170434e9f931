package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordDBPoolMetrics samples the shared pool into the db gauge. The
// app's collector ticker calls this alongside RecordInstanceStates.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	for state, value := range map[string]float64{
		"in_use": float64(stats.AcquiredConns()),
		"idle":   float64(stats.IdleConns()),
		"max":    float64(stats.MaxConns()),
	} {
		DBPoolConnections.WithLabelValues(state).Set(value)
	}
}
