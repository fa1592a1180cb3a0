// Package config loads the YAML configuration shared by the command-line
// tools, with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Blackthor84/WorkVouch-sub000/internal/fuzz"
)

// Config holds the global configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Engine    EngineConfig    `yaml:"engine"`
	Fuzz      fuzz.Bounds     `yaml:"fuzz"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Remote    RemoteConfig    `yaml:"remote"`
}

// StorageConfig selects the SQL backend shared by every store.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	DSN    string `yaml:"dsn"`
}

// EngineConfig seeds the reducer's initial state for CLI sessions.
type EngineConfig struct {
	Industry     string `yaml:"industry"`
	EmployerMode string `yaml:"employer_mode"` // lenient | standard | strict
}

// RateLimitConfig throttles each actor in the action registry.
type RateLimitConfig struct {
	Enabled   bool    `yaml:"enabled"`
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// SandboxConfig tunes the reference collaborator's scoring.
type SandboxConfig struct {
	// Path of the SQLite file holding sandbox tables when storage is
	// postgres. With sqlite storage the sandbox shares storage.dsn.
	Path          string  `yaml:"path"`
	CycleDiscount bool    `yaml:"cycle_discount"`
	CycleWeight   float64 `yaml:"cycle_weight"`
	CycleDepth    int     `yaml:"cycle_depth"`
	Journal       bool    `yaml:"journal"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" | "json"
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type RemoteConfig struct {
	// Addr of a remote action service. Empty runs the sandbox in process.
	Addr string `yaml:"addr"`
	// Listen is the action-server bind address.
	Listen string `yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Driver: "sqlite", DSN: "trustsim.db"},
		Engine:  EngineConfig{Industry: "general", EmployerMode: "standard"},
		Fuzz:    fuzz.DefaultBounds(),
		RateLimit: RateLimitConfig{
			PerSecond: 10,
			Burst:     20,
		},
		Sandbox: SandboxConfig{Path: "trustsim-sandbox.db", CycleDiscount: true, CycleWeight: 0.1, CycleDepth: 8},
		Log:     LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "trustsim",
		},
		Remote: RemoteConfig{Listen: "localhost:50061"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Storage.DSN = envOr("TRUSTSIM_DB", c.Storage.DSN)
	c.Storage.Driver = envOr("TRUSTSIM_DB_DRIVER", c.Storage.Driver)
	c.Log.Level = envOr("TRUSTSIM_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("TRUSTSIM_LOG_FORMAT", c.Log.Format)
	c.Remote.Addr = envOr("TRUSTSIM_REMOTE_ADDR", c.Remote.Addr)
	if ep := os.Getenv("TRUSTSIM_OTLP_ENDPOINT"); ep != "" {
		c.Telemetry.Endpoint = ep
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("TRUSTSIM_CYCLE_DISCOUNT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRUSTSIM_CYCLE_DISCOUNT: %w", err)
		}
		c.Sandbox.CycleDiscount = b
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unsupported %q", c.Log.Format)
	}
	switch c.Engine.EmployerMode {
	case "", "lenient", "standard", "strict":
	default:
		return fmt.Errorf("engine.employer_mode: unsupported %q", c.Engine.EmployerMode)
	}
	if c.Fuzz.MinActors > c.Fuzz.MaxActors {
		return fmt.Errorf("fuzz: min_actors %d above max_actors %d", c.Fuzz.MinActors, c.Fuzz.MaxActors)
	}
	if c.RateLimit.Enabled && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.burst must be positive when enabled")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
