// Package credentials provides a per-tenant, per-resource bearer token
// cache with a refresh-ahead freshness margin.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultFreshnessMargin is how long before expiry a token is considered
// stale and refreshed.
const DefaultFreshnessMargin = 5 * time.Minute

// TokenIssuer acquires a fresh token from the identity provider.
type TokenIssuer interface {
	AcquireToken(ctx context.Context, tenantID, resource string) (token string, expiry time.Time, err error)
}

type cacheKey struct {
	tenantID string
	resource string
}

// entry holds one cached token. The entry mutex serializes refresh per
// key so concurrent callers for the same (tenant, resource) wait for a
// single acquisition instead of storming the issuer.
type entry struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
}

// Cache caches bearer tokens per (tenant, resource). Entries for
// different keys never contend with each other.
type Cache struct {
	issuer TokenIssuer
	margin time.Duration

	mu      sync.RWMutex
	entries map[cacheKey]*entry

	now func() time.Time
}

// NewCache creates a token cache. A non-positive margin falls back to
// DefaultFreshnessMargin.
func NewCache(issuer TokenIssuer, margin time.Duration) *Cache {
	if margin <= 0 {
		margin = DefaultFreshnessMargin
	}
	return &Cache{
		issuer:  issuer,
		margin:  margin,
		entries: make(map[cacheKey]*entry),
		now:     time.Now,
	}
}

// Get returns a token for the (tenant, resource) pair, refreshing it
// through the issuer when the cached one is absent or within the
// freshness margin of its expiry. No caller ever observes a token past
// expiry minus the margin.
func (c *Cache) Get(ctx context.Context, tenantID, resource string) (string, error) {
	e := c.entryFor(cacheKey{tenantID: tenantID, resource: resource})

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token != "" && e.expiry.Sub(c.now()) > c.margin {
		recordCacheHit(resource)
		return e.token, nil
	}

	recordCacheMiss(resource)

	token, expiry, err := c.issuer.AcquireToken(ctx, tenantID, resource)
	if err != nil {
		recordAcquireFailure(resource)
		return "", fmt.Errorf("acquire token for resource %s: %w", resource, err)
	}

	// Replacement is atomic per key: both fields change under the entry lock.
	e.token = token
	e.expiry = expiry

	slog.Debug("token refreshed",
		"tenant_id", tenantID,
		"resource", resource,
		"expires_in", expiry.Sub(c.now()),
	)

	return token, nil
}

// Invalidate drops the cached token for the pair, forcing the next Get
// to acquire a fresh one. Used after a downstream 401.
func (c *Cache) Invalidate(tenantID, resource string) {
	e := c.entryFor(cacheKey{tenantID: tenantID, resource: resource})
	e.mu.Lock()
	e.token = ""
	e.expiry = time.Time{}
	e.mu.Unlock()
}

func (c *Cache) entryFor(key cacheKey) *entry {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[key]; ok {
		return e
	}
	e = &entry{}
	c.entries[key] = e
	return e
}
