// Package domain contains the core data model for remediation orchestration.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies an external security platform.
type Platform string

// Supported platforms.
const (
	PlatformEndpointProtection  Platform = "endpoint-protection"
	PlatformEmailSecurity       Platform = "email-security"
	PlatformCloudAppSecurity    Platform = "cloud-app-security"
	PlatformIdentityProtection  Platform = "identity-protection"
	PlatformDirectory           Platform = "directory"
	PlatformDeviceManagement    Platform = "device-management"
	PlatformCloudInfrastructure Platform = "cloud-infrastructure"
)

// Platforms lists every supported platform.
func Platforms() []Platform {
	return []Platform{
		PlatformEndpointProtection,
		PlatformEmailSecurity,
		PlatformCloudAppSecurity,
		PlatformIdentityProtection,
		PlatformDirectory,
		PlatformDeviceManagement,
		PlatformCloudInfrastructure,
	}
}

// IsValid checks if the platform is one of the supported platforms.
func (p Platform) IsValid() bool {
	for _, known := range Platforms() {
		if p == known {
			return true
		}
	}
	return false
}

// Action identifies a remediation action within a platform's catalog.
type Action string

// Priority represents the urgency of a remediation request.
type Priority string

// Priorities, ordered from lowest to highest.
const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// rank maps priorities to their ordering. Unknown priorities rank lowest.
func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	}
	return 0
}

// IsValid checks if the priority is valid.
func (p Priority) IsValid() bool {
	return p.rank() > 0
}

// AtLeast reports whether the priority is equal to or higher than other.
func (p Priority) AtLeast(other Priority) bool {
	return p.rank() >= other.rank()
}

// RemediationRequest describes one remediation to perform on a platform.
type RemediationRequest struct {
	RequestID     string         `json:"request_id"`
	TenantID      string         `json:"tenant_id"`
	IncidentID    string         `json:"incident_id"`
	Platform      Platform       `json:"platform"`
	Action        Action         `json:"action"`
	Parameters    map[string]any `json:"parameters"`
	InitiatedBy   string         `json:"initiated_by"`
	Priority      Priority       `json:"priority"`
	Justification string         `json:"justification"`
	Timestamp     time.Time      `json:"timestamp"`
}

// EnsureRequestID generates a request id if none was supplied.
func (r *RemediationRequest) EnsureRequestID() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
}

// RequiresJustification reports whether the request must carry a justification.
func (r *RemediationRequest) RequiresJustification() bool {
	return r.Priority.AtLeast(PriorityHigh)
}
