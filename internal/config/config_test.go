package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"routeopt/internal/vrp"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, vrp.DefaultSearchParameters(), cfg.Search.Parameters())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routeopt.yaml")
	yml := `
port: "9090"
maxConcurrentSolves: 2
search:
  strategy: alns
  timeLimit: 1500ms
  iterationLimit: 300
auth:
  mode: dev
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("MAX_CONCURRENT_SOLVES", "8")
	t.Setenv("SOLVER_SEED", "42")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.EqualValues(t, 8, cfg.MaxConcurrentSolves)

	p := cfg.Search.Parameters()
	require.Equal(t, vrp.StrategyALNS, p.Strategy)
	require.Equal(t, 1500*time.Millisecond, p.TimeLimit)
	require.Equal(t, 300, p.IterationLimit)
	require.EqualValues(t, 42, p.Seed)
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{"RATE_BURST": "lots", "WEBHOOK_MAX_ATTEMPTS": "3"}))
	require.ErrorContains(t, err, "RATE_BURST")
	require.Equal(t, 3, cfg.WebhookMaxAttempts)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero concurrency": func(c *Config) { c.MaxConcurrentSolves = 0 },
		"unknown strategy": func(c *Config) { c.Search.Strategy = "tabu" },
		"hmac without key": func(c *Config) { c.Auth.Mode = "hmac" },
		"unknown auth":     func(c *Config) { c.Auth.Mode = "jwks" },
		"no cache":         func(c *Config) { c.MatrixCacheSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
