package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{"default data root", func(c *Config) bool { return c.DataRoot == "/data/service/el1/public/asset_service" }},
		{"default schema version", func(c *Config) bool { return c.SchemaVersion == 1 }},
		{"default host", func(c *Config) bool { return c.Host == "127.0.0.1" }},
		{"default port", func(c *Config) bool { return c.Port == 8090 }},
		{"default log level", func(c *Config) bool { return c.LogLevel == "info" }},
		{"default log format", func(c *Config) bool { return c.LogFormat == "json" }},
		{"default metrics path", func(c *Config) bool { return c.MetricsPath == "/metrics" }},
		{"default session max age", func(c *Config) bool { return c.SessionMaxAge.Seconds() == 60 }},
		{"default backup interval", func(c *Config) bool { return c.BackupMinInterval.Hours() == 1 }},
		{"default sync trigger interval", func(c *Config) bool { return c.SyncTriggerMinInterval.Hours() == 12 }},
		{"listen addr format", func(c *Config) bool { return c.ListenAddr() == "127.0.0.1:8090" }},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("unexpected default for %s", tt.name)
			}
		})
	}
}
