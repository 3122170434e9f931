// Package audit records remediation outcomes to an audit sink.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/opsforge/remediator/internal/domain"
)

// Entry is one audit record.
type Entry struct {
	InstanceID  string                `json:"instance_id"`
	TenantID    string                `json:"tenant_id"`
	RequestID   string                `json:"request_id"`
	IncidentID  string                `json:"incident_id"`
	Platform    domain.Platform       `json:"platform"`
	Action      domain.Action         `json:"action"`
	Status      domain.ResponseStatus `json:"status"`
	Success     bool                  `json:"success"`
	Message     string                `json:"message"`
	InitiatedBy string                `json:"initiated_by"`
	RecordedAt  time.Time             `json:"recorded_at"`
}

// Sink writes audit entries. The orchestration engine treats writes as
// best-effort; sinks should still report errors so failures are logged.
type Sink interface {
	Write(ctx context.Context, entry *Entry) error
}

// SlogSink writes audit entries to the structured log. Used when no
// database is configured.
type SlogSink struct{}

// NewSlogSink creates a log-backed audit sink.
func NewSlogSink() *SlogSink {
	return &SlogSink{}
}

// Write logs the entry.
func (s *SlogSink) Write(_ context.Context, entry *Entry) error {
	slog.Info("audit",
		"instance_id", entry.InstanceID,
		"tenant_id", entry.TenantID,
		"request_id", entry.RequestID,
		"incident_id", entry.IncidentID,
		"platform", entry.Platform,
		"action", entry.Action,
		"status", entry.Status,
		"success", entry.Success,
		"initiated_by", entry.InitiatedBy,
	)
	return nil
}
