package domain

import "time"

// ResponseStatus is the closed status vocabulary for remediation outcomes.
type ResponseStatus string

// Response statuses.
const (
	StatusCompleted            ResponseStatus = "Completed"
	StatusFailed               ResponseStatus = "Failed"
	StatusCancelled            ResponseStatus = "Cancelled"
	StatusValidationFailed     ResponseStatus = "ValidationFailed"
	StatusPlatformNotSupported ResponseStatus = "PlatformNotSupported"
	StatusActionNotSupported   ResponseStatus = "ActionNotSupported"
	StatusOrchestrationFailed  ResponseStatus = "OrchestrationFailed"
)

// IsTerminal reports whether the status describes a finished remediation.
// Every status in the vocabulary except an empty one is terminal; the
// set is enumerated explicitly so additions must opt in.
func (s ResponseStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled,
		StatusValidationFailed, StatusPlatformNotSupported,
		StatusActionNotSupported, StatusOrchestrationFailed:
		return true
	}
	return false
}

// RemediationResponse is the outcome of one remediation request.
type RemediationResponse struct {
	RequestID   string         `json:"request_id"`
	Success     bool           `json:"success"`
	Status      ResponseStatus `json:"status"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Errors      []string       `json:"errors,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
	Duration    time.Duration  `json:"duration"`
}
