package domain

import "time"

// InstanceState represents the state of an orchestration instance.
type InstanceState string

// Orchestration instance states. Pending is initial; Completed, Failed,
// Cancelled and Terminated are terminal.
const (
	InstancePending    InstanceState = "Pending"
	InstanceValidating InstanceState = "Validating"
	InstanceRouting    InstanceState = "Routing"
	InstanceExecuting  InstanceState = "Executing"
	InstanceFinalizing InstanceState = "Finalizing"
	InstanceCompleted  InstanceState = "Completed"
	InstanceFailed     InstanceState = "Failed"
	InstanceCancelled  InstanceState = "Cancelled"
	InstanceTerminated InstanceState = "Terminated"
)

// IsTerminal reports whether the state is terminal.
func (s InstanceState) IsTerminal() bool {
	return s == InstanceCompleted ||
		s == InstanceFailed ||
		s == InstanceCancelled ||
		s == InstanceTerminated
}

// OrchestrationInstance is one stateful execution of the remediation
// workflow for a single request. It is mutated only by the owning
// orchestration's execution goroutine; callers read snapshots.
type OrchestrationInstance struct {
	ID            string              `json:"id"`
	Request       RemediationRequest  `json:"request"`
	State         InstanceState       `json:"state"`
	CreatedAt     time.Time           `json:"created_at"`
	LastUpdatedAt time.Time           `json:"last_updated_at"`
	Output        *RemediationResponse `json:"output,omitempty"`
}
