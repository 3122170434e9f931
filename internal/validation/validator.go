// Package validation performs structural and policy checks on incoming
// remediation requests.
package validation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/tenant"
)

// Result is the outcome of validating a request.
type Result struct {
	IsValid bool   `json:"is_valid"`
	Message string `json:"message,omitempty"`
}

func invalid(format string, args ...any) Result {
	return Result{IsValid: false, Message: fmt.Sprintf(format, args...)}
}

// Validator checks remediation requests against structural rules and
// tenant policy. It has no side effects; the result is a pure function
// of the request and the tenant configuration.
type Validator struct {
	tenants tenant.ConfigProvider
}

// NewValidator creates a validator backed by the given tenant lookup.
func NewValidator(tenants tenant.ConfigProvider) *Validator {
	return &Validator{tenants: tenants}
}

// Validate runs the checks sequentially, short-circuiting on the first
// failure.
func (v *Validator) Validate(ctx context.Context, req *domain.RemediationRequest) Result {
	if req.TenantID == "" {
		return invalid("tenant id is required")
	}
	if _, err := uuid.Parse(req.TenantID); err != nil {
		return invalid("tenant id %q is not a valid tenant identifier", req.TenantID)
	}

	cfg, err := v.tenants.GetTenantConfig(ctx, req.TenantID)
	if err != nil {
		return invalid("tenant %s is not known", req.TenantID)
	}
	if !cfg.IsActive {
		return invalid("tenant %s is not active", req.TenantID)
	}

	if req.IncidentID == "" {
		return invalid("incident id is required")
	}

	if !cfg.PlatformEnabled(req.Platform) {
		return invalid("platform %s is not enabled for tenant %s", req.Platform, req.TenantID)
	}

	if res := checkRequiredParameters(req.Action, req.Parameters); !res.IsValid {
		return res
	}

	if req.InitiatedBy == "" {
		return invalid("initiator is required")
	}

	if req.RequiresJustification() && req.Justification == "" {
		return invalid("justification is required for priority %s", req.Priority)
	}

	return Result{IsValid: true}
}

// checkRequiredParameters verifies the action's declared parameter
// requirements. Actions without declared requirements are valid as long
// as any parameter is present.
func checkRequiredParameters(action domain.Action, params map[string]any) Result {
	rules, ok := requiredParams[action]
	if !ok {
		if len(params) == 0 {
			return invalid("action %s requires at least one parameter", action)
		}
		return Result{IsValid: true}
	}

	for _, rule := range rules {
		if !rule.satisfiedBy(params) {
			return invalid("action %s requires one of parameters: %v", action, rule.AnyOf)
		}
	}
	return Result{IsValid: true}
}
