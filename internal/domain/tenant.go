package domain

// TenantConfig holds per-tenant remediation policy.
type TenantConfig struct {
	TenantID         string     `json:"tenant_id"`
	Name             string     `json:"name"`
	IsActive         bool       `json:"is_active"`
	EnabledPlatforms []Platform `json:"enabled_platforms"`
}

// PlatformEnabled reports whether the tenant may use the platform.
// An empty enabled list means all platforms are enabled.
func (c *TenantConfig) PlatformEnabled(p Platform) bool {
	if len(c.EnabledPlatforms) == 0 {
		return true
	}
	for _, enabled := range c.EnabledPlatforms {
		if enabled == p {
			return true
		}
	}
	return false
}
