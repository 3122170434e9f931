package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/opsforge/remediator/internal/domain"
)

// DefaultConfigTTL is how long a cached tenant configuration stays valid.
const DefaultConfigTTL = 10 * time.Minute

type cachedConfig struct {
	mu        sync.Mutex
	config    *domain.TenantConfig
	fetchedAt time.Time
}

// CachedProvider decorates a ConfigProvider with a per-tenant TTL cache.
// Lookup errors are not cached; every miss retries the inner provider.
type CachedProvider struct {
	inner ConfigProvider
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]*cachedConfig

	now func() time.Time
}

// NewCachedProvider wraps inner with a TTL cache. A non-positive ttl
// falls back to DefaultConfigTTL.
func NewCachedProvider(inner ConfigProvider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &CachedProvider{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]*cachedConfig),
		now:     time.Now,
	}
}

// GetTenantConfig returns the tenant's configuration, served from cache
// when it is younger than the TTL.
func (p *CachedProvider) GetTenantConfig(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	e := p.entryFor(tenantID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.config != nil && p.now().Sub(e.fetchedAt) < p.ttl {
		return e.config, nil
	}

	cfg, err := p.inner.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	e.config = cfg
	e.fetchedAt = p.now()
	return cfg, nil
}

func (p *CachedProvider) entryFor(tenantID string) *cachedConfig {
	p.mu.RLock()
	e, ok := p.entries[tenantID]
	p.mu.RUnlock()
	if ok {
		return e
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok = p.entries[tenantID]; ok {
		return e
	}
	e = &cachedConfig{}
	p.entries[tenantID] = e
	return e
}
