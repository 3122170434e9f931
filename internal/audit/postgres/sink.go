// Package postgres provides the PostgreSQL audit sink.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsforge/remediator/internal/audit"
)

// Sink writes audit entries to the audit_log table.
type Sink struct {
	db *pgxpool.Pool
}

// NewSink creates a PostgreSQL audit sink.
func NewSink(db *pgxpool.Pool) *Sink {
	return &Sink{db: db}
}

// Write inserts the entry.
func (s *Sink) Write(ctx context.Context, entry *audit.Entry) error {
	query := `
		INSERT INTO audit_log (
			instance_id, tenant_id, request_id, incident_id,
			platform, action, status, success, message,
			initiated_by, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.Exec(ctx, query,
		entry.InstanceID,
		entry.TenantID,
		entry.RequestID,
		entry.IncidentID,
		entry.Platform,
		entry.Action,
		entry.Status,
		entry.Success,
		entry.Message,
		entry.InitiatedBy,
		entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}
