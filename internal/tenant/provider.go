// Package tenant resolves per-tenant remediation policy.
package tenant

import (
	"context"
	"errors"
	"sync"

	"github.com/opsforge/remediator/internal/domain"
)

// Errors returned by providers.
var (
	// ErrTenantNotFound indicates the tenant is unknown.
	ErrTenantNotFound = errors.New("tenant not found")
)

// ConfigProvider looks up tenant configuration.
type ConfigProvider interface {
	GetTenantConfig(ctx context.Context, tenantID string) (*domain.TenantConfig, error)
}

// StaticProvider serves tenant configuration from a fixed set, typically
// loaded from the service configuration file.
type StaticProvider struct {
	mu      sync.RWMutex
	tenants map[string]domain.TenantConfig
}

// NewStaticProvider creates a provider over the given tenants.
func NewStaticProvider(tenants []domain.TenantConfig) *StaticProvider {
	m := make(map[string]domain.TenantConfig, len(tenants))
	for _, t := range tenants {
		m[t.TenantID] = t
	}
	return &StaticProvider{tenants: m}
}

// GetTenantConfig returns the tenant's configuration.
func (p *StaticProvider) GetTenantConfig(_ context.Context, tenantID string) (*domain.TenantConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cfg, ok := p.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return &cfg, nil
}

// Upsert adds or replaces a tenant. Used by tests and admin tooling.
func (p *StaticProvider) Upsert(cfg domain.TenantConfig) {
	p.mu.Lock()
	p.tenants[cfg.TenantID] = cfg
	p.mu.Unlock()
}
