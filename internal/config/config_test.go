package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sanonone/edgelite/pkg/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edgelite.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("EDGELITE_TEST_TOKEN", "s3cret")
	path := writeConfig(t, `
store:
  backend: sqlite
  path: /var/lib/edgelite
server:
  auth_token: ${EDGELITE_TEST_TOKEN}
  session_ttl: 90s
log:
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/var/lib/edgelite" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Server.AuthToken != "s3cret" {
		t.Errorf("auth_token = %q, want expanded env var", cfg.Server.AuthToken)
	}
	if cfg.Server.SessionTTL != 90*time.Second {
		t.Errorf("session_ttl = %v", cfg.Server.SessionTTL)
	}
	// untouched keys keep their defaults
	if cfg.Server.HTTPAddr != ":9091" || cfg.Engine.MaxSteps != 10000 || !cfg.Store.SyncWrites {
		t.Errorf("defaults lost: %+v", cfg)
	}

	opts := cfg.EngineOptions()
	if opts.Backend != engine.BackendSQLite || opts.DataDir != "/var/lib/edgelite" {
		t.Errorf("EngineOptions = %+v", opts)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: memory\n  bakend: typo\n")
	if _, err := Load(path); err == nil {
		t.Error("typo in key accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"max steps", func(c *Config) { c.Engine.MaxSteps = -1 }},
		{"compact percentage", func(c *Config) { c.Engine.CompactPercentage = -1 }},
		{"maintenance interval", func(c *Config) { c.Engine.MaintenanceInterval = -time.Second }},
		{"session ttl", func(c *Config) { c.Server.SessionTTL = -time.Second }},
		{"level", func(c *Config) { c.Log.Level = "verbose" }},
		{"format", func(c *Config) { c.Log.Format = "xml" }},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid value")
			}
		})
	}
}

func TestEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Store.Backend)
	}
}
