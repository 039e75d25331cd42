// Package config loads the asset service's runtime configuration from
// environment variables, grounded directly on the teacher's
// internal/config/config.go struct-tag-driven loader.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the asset service, loaded from the
// environment.
type Config struct {
	// Storage
	DataRoot     string `env:"ASSET_DATA_ROOT" envDefault:"/data/service/el1/public/asset_service"`
	SchemaVersion int    `env:"ASSET_SCHEMA_VERSION" envDefault:"1"`

	// HTTP transport (stand-in for the out-of-scope FFI surface)
	Host string `env:"ASSET_HOST" envDefault:"127.0.0.1"`
	Port int    `env:"ASSET_PORT" envDefault:"8090"`

	// Logging
	LogLevel  string `env:"ASSET_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ASSET_LOG_FORMAT" envDefault:"json"`

	// Audit trail (C9, distinct from the main service log)
	AuditLogPath string `env:"ASSET_AUDIT_LOG_PATH" envDefault:"/var/log/asset_service/audit.jsonl"`

	// Telemetry
	MetricsPath string `env:"ASSET_METRICS_PATH" envDefault:"/metrics"`

	// C5 session policy
	SessionMaxAge time.Duration `env:"ASSET_SESSION_MAX_AGE" envDefault:"60s"`

	// C9 rate limits
	BackupMinInterval      time.Duration `env:"ASSET_BACKUP_MIN_INTERVAL" envDefault:"1h"`
	SyncTriggerMinInterval time.Duration `env:"ASSET_SYNC_TRIGGER_MIN_INTERVAL" envDefault:"12h"`

	// C10 idle policy
	IdleFixedDelay time.Duration `env:"ASSET_IDLE_FIXED_DELAY" envDefault:"5s"`
}

// Load reads Config from the environment, applying envDefault tags for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP transport should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
