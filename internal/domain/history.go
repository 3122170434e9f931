package domain

import "time"

// HistoryEntry is the durable, queryable record of one remediation
// request's lifecycle and outcome. Entries are keyed by
// (tenant_id, request_id) and upserted last-write-wins.
type HistoryEntry struct {
	TenantID           string         `json:"tenant_id"`
	RequestID          string         `json:"request_id"`
	IncidentID         string         `json:"incident_id"`
	Platform           Platform       `json:"platform"`
	Action             Action         `json:"action"`
	Status             ResponseStatus `json:"status"`
	Success            bool           `json:"success"`
	Message            string         `json:"message"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	InitiatedBy        string         `json:"initiated_by"`
	Priority           Priority       `json:"priority"`
	Justification      string         `json:"justification,omitempty"`
	InitiatedAt        time.Time      `json:"initiated_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	Duration           time.Duration  `json:"duration"`
	CancelledAt        *time.Time     `json:"cancelled_at,omitempty"`
	CancelledBy        string         `json:"cancelled_by,omitempty"`
	CancellationReason string         `json:"cancellation_reason,omitempty"`
}

// FromInstance projects an orchestration instance into a history entry.
func (e *HistoryEntry) FromInstance(inst *OrchestrationInstance) {
	e.TenantID = inst.Request.TenantID
	e.RequestID = inst.Request.RequestID
	e.IncidentID = inst.Request.IncidentID
	e.Platform = inst.Request.Platform
	e.Action = inst.Request.Action
	e.Parameters = inst.Request.Parameters
	e.InitiatedBy = inst.Request.InitiatedBy
	e.Priority = inst.Request.Priority
	e.Justification = inst.Request.Justification
	e.InitiatedAt = inst.CreatedAt

	if out := inst.Output; out != nil {
		e.Status = out.Status
		e.Success = out.Success
		e.Message = out.Message
		e.Duration = out.Duration
		if !out.CompletedAt.IsZero() {
			completed := out.CompletedAt
			e.CompletedAt = &completed
		}
	}
}
