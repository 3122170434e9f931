// Package config loads service configuration from a YAML file and
// environment variables. Environment variables take precedence and use
// the REMEDIATOR_ prefix with double underscores as section separators,
// e.g. REMEDIATOR_SERVER__PORT=8080.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "REMEDIATOR_"

// Config is the root service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Log           LogConfig           `koanf:"log"`
	Database      DatabaseConfig      `koanf:"database"`
	Credentials   CredentialsConfig   `koanf:"credentials"`
	Resilience    ResilienceConfig    `koanf:"resilience"`
	Platforms     map[string]Endpoint `koanf:"platforms"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Tenants       TenantsConfig       `koanf:"tenants"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL selects the
// in-memory stores: history, audit and the orchestration journal then
// live only as long as the process.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	// MigrationsPath points at a schema directory on disk. Empty
	// selects the embedded migrations.
	MigrationsPath string `koanf:"migrations_path"`
}

// CredentialsConfig holds identity provider settings for platform
// API tokens.
type CredentialsConfig struct {
	TokenURL        string        `koanf:"token_url"`
	ClientID        string        `koanf:"client_id"`
	ClientSecret    string        `koanf:"client_secret"`
	FreshnessMargin time.Duration `koanf:"freshness_margin"`
}

// ResilienceConfig holds retry and circuit breaker settings for
// outbound platform calls.
type ResilienceConfig struct {
	MaxAttempts      int           `koanf:"max_attempts"`
	InitialInterval  time.Duration `koanf:"initial_interval"`
	BreakerThreshold int           `koanf:"breaker_threshold"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown"`
}

// Endpoint describes one security platform's API endpoint.
type Endpoint struct {
	BaseURL  string `koanf:"base_url"`
	Resource string `koanf:"resource"`
}

// NotificationsConfig holds webhook notification settings.
type NotificationsConfig struct {
	Enabled   bool    `koanf:"enabled"`
	URL       string  `koanf:"url"`
	RateLimit float64 `koanf:"rate_limit"`
}

// TenantsConfig holds the static tenant registry and its cache TTL.
type TenantsConfig struct {
	ConfigTTL time.Duration `koanf:"config_ttl"`
	Static    []TenantEntry `koanf:"static"`
}

// TenantEntry is one statically configured tenant.
type TenantEntry struct {
	TenantID         string   `koanf:"tenant_id"`
	Name             string   `koanf:"name"`
	IsActive         bool     `koanf:"is_active"`
	EnabledPlatforms []string `koanf:"enabled_platforms"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			CORSOrigins:       []string{},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
		},
		Credentials: CredentialsConfig{
			FreshnessMargin: 5 * time.Minute,
		},
		Resilience: ResilienceConfig{
			MaxAttempts:      3,
			InitialInterval:  2 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Tenants: TenantsConfig{
			ConfigTTL: 10 * time.Minute,
		},
	}
}

// Load reads configuration from the file at path (skipped when empty)
// and the environment, layered over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the type system can't.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}

	if c.Resilience.MaxAttempts < 1 {
		return errors.New("resilience.max_attempts must be at least 1")
	}
	if c.Resilience.BreakerThreshold < 1 {
		return errors.New("resilience.breaker_threshold must be at least 1")
	}

	if c.Notifications.Enabled && c.Notifications.URL == "" {
		return errors.New("notifications.url is required when notifications are enabled")
	}

	seen := make(map[string]struct{}, len(c.Tenants.Static))
	for _, t := range c.Tenants.Static {
		if t.TenantID == "" {
			return errors.New("tenants.static entries require tenant_id")
		}
		if _, dup := seen[t.TenantID]; dup {
			return fmt.Errorf("duplicate tenant_id %s in tenants.static", t.TenantID)
		}
		seen[t.TenantID] = struct{}{}
	}

	return nil
}
