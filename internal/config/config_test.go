package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trustsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: postgres
  dsn: postgres://sim@localhost/sim
fuzz:
  min_actors: 4
  max_actors: 9
sandbox:
  cycle_discount: false
log:
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Fuzz.MinActors)
	assert.Equal(t, 9, cfg.Fuzz.MaxActors)
	assert.Equal(t, 50.0, cfg.Fuzz.MaxCombinedIncrease, "unset keys keep defaults")
	assert.False(t, cfg.Sandbox.CycleDiscount)
	assert.Equal(t, 0.1, cfg.Sandbox.CycleWeight)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRUSTSIM_DB", "/tmp/other.db")
	t.Setenv("TRUSTSIM_LOG_LEVEL", "debug")
	t.Setenv("TRUSTSIM_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("TRUSTSIM_CYCLE_DISCOUNT", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.Endpoint)
	assert.False(t, cfg.Sandbox.CycleDiscount)

	t.Setenv("TRUSTSIM_CYCLE_DISCOUNT", "sometimes")
	_, err = Load("")
	assert.ErrorContains(t, err, "TRUSTSIM_CYCLE_DISCOUNT")
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"bad yaml":      "storage: [",
		"driver":        "storage: {driver: mysql}",
		"log format":    "log: {format: xml}",
		"actor bounds":  "fuzz: {min_actors: 8, max_actors: 3}",
		"rate limiting": "rate_limit: {enabled: true, burst: 0}",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
