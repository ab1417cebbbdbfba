package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Negotiation.PriceLockTTL.Duration != 48*time.Hour {
		t.Errorf("PriceLockTTL = %v, want 48h", cfg.Negotiation.PriceLockTTL)
	}
	if cfg.Negotiation.RejectCooldown.Duration != 24*time.Hour {
		t.Errorf("RejectCooldown = %v, want 24h", cfg.Negotiation.RejectCooldown)
	}
	if cfg.Negotiation.BlockThreshold != 3 {
		t.Errorf("BlockThreshold = %d, want 3", cfg.Negotiation.BlockThreshold)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Driver = %q, want sqlite3", cfg.Database.Driver)
	}
}

func TestLoadConfigJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"server": {"port": "9090"},
		"negotiation": {"price_lock_ttl": "72h", "block_threshold": 5, "reject_cooldown": 3600}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Negotiation.PriceLockTTL.Duration != 72*time.Hour {
		t.Errorf("PriceLockTTL = %v, want 72h", cfg.Negotiation.PriceLockTTL)
	}
	if cfg.Negotiation.RejectCooldown.Duration != time.Hour {
		t.Errorf("RejectCooldown = %v, want 1h", cfg.Negotiation.RejectCooldown)
	}
	if cfg.Negotiation.BlockThreshold != 5 {
		t.Errorf("BlockThreshold = %d, want 5", cfg.Negotiation.BlockThreshold)
	}
	// untouched sections keep defaults
	if cfg.Negotiation.BlockDuration.Duration != 30*24*time.Hour {
		t.Errorf("BlockDuration = %v, want 720h", cfg.Negotiation.BlockDuration)
	}
}

func TestLoadConfigYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  driver: postgres
  dsn: postgres://kisan@localhost/kisan?sslmode=disable
scheduler:
  reaper_interval: 1h
notify:
  kafka_brokers: "a:9092, b:9092"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Scheduler.ReaperInterval.Duration != time.Hour {
		t.Errorf("ReaperInterval = %v, want 1h", cfg.Scheduler.ReaperInterval)
	}
	brokers := cfg.Notify.Brokers()
	if len(brokers) != 2 || brokers[1] != "b:9092" {
		t.Errorf("Brokers() = %v", brokers)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": "9090"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("NEGOTIATION_BLOCK_DURATION", "168h")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("Port = %q, want 7070", cfg.Server.Port)
	}
	if cfg.Negotiation.BlockDuration.Duration != 168*time.Hour {
		t.Errorf("BlockDuration = %v, want 168h", cfg.Negotiation.BlockDuration)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.JWTSecret = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, true},
		{"zero threshold", func(c *Config) { c.Negotiation.BlockThreshold = 0 }, true},
		{"zero ttl", func(c *Config) { c.Negotiation.PriceLockTTL.Duration = 0 }, true},
		{"bad rate", func(c *Config) { c.RateLimit.Rate = 0 }, true},
		{"rate limit off ignores rate", func(c *Config) { c.RateLimit.Enabled = false; c.RateLimit.Rate = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
