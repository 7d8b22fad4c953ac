// Package config defines the YAML configuration of the edgelite server.
//
// Values may reference environment variables ($VAR or ${VAR}); they are
// expanded before parsing. Unknown keys are rejected to catch typos.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sanonone/edgelite/pkg/engine"
)

// Config is the top-level structure of the configuration file.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Server ServerConfig `yaml:"server"`
	Engine EngineConfig `yaml:"engine"`
	Log    LogConfig    `yaml:"log"`
}

// StoreConfig selects and locates the edge store.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // "memory", "sqlite", "badger"
	Path       string `yaml:"path"`    // data directory, empty for in-memory
	SyncWrites bool   `yaml:"sync_writes"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	HTTPAddr   string        `yaml:"http_addr"`
	AuthToken  string        `yaml:"auth_token"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type EngineConfig struct {
	MaxSteps            int           `yaml:"max_steps"`
	CompactPercentage   int           `yaml:"compact_percentage"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text", "json"
}

// Default returns a configuration that works without a file.
func Default() *Config {
	opts := engine.DefaultOptions("./data")
	return &Config{
		Store: StoreConfig{
			Backend:    string(opts.Backend),
			Path:       opts.DataDir,
			SyncWrites: opts.SyncWrites,
		},
		Server: ServerConfig{
			HTTPAddr:   ":9091",
			SessionTTL: 10 * time.Minute,
		},
		Engine: EngineConfig{
			MaxSteps:            opts.MaxSteps,
			CompactPercentage:   opts.CompactPercentage,
			MaintenanceInterval: opts.MaintenanceInterval,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read configuration file '%s': %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("YAML syntax error in '%s': %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration '%s': %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	switch engine.Backend(c.Store.Backend) {
	case engine.BackendMemory, engine.BackendSQLite, engine.BackendBadger:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("engine.max_steps must not be negative")
	}
	if c.Engine.CompactPercentage < 0 {
		return fmt.Errorf("engine.compact_percentage must not be negative")
	}
	if c.Engine.MaintenanceInterval < 0 {
		return fmt.Errorf("engine.maintenance_interval must not be negative")
	}
	if c.Server.SessionTTL < 0 {
		return fmt.Errorf("server.session_ttl must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// EngineOptions maps the configuration onto engine.Options.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions(c.Store.Path)
	opts.Backend = engine.Backend(c.Store.Backend)
	opts.SyncWrites = c.Store.SyncWrites
	opts.MaxSteps = c.Engine.MaxSteps
	opts.CompactPercentage = c.Engine.CompactPercentage
	opts.MaintenanceInterval = c.Engine.MaintenanceInterval
	return opts
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", l.Level)
	}
	return level, nil
}

// NewLogger builds the process logger described by l.
func (l LogConfig) NewLogger() (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}
