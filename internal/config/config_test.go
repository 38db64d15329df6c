package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	// Keep tests independent of a developer's .env.
	require.NoError(t, fs.Set("env-file", ""))
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Tracker.Workers)
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.BaseCooldown)
	assert.InDelta(t, 2.0, cfg.Breaker.Escalation, 1e-9)
	assert.Equal(t, 10*time.Minute, cfg.Breaker.MaxCooldown)
	assert.Equal(t, 1000, cfg.DeadLetter.MaxEntries)
	assert.Equal(t, "https://api.dexscreener.com", cfg.DexScreener.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)

	backend, target, err := cfg.Database.Backend()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, backend)
	assert.Equal(t, DefaultSQLitePath, target)
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("BIRDEYE_API_KEY", "legacy-key")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/tracker")
	t.Setenv("TRACKER_CACHE_TTL", "30s")
	t.Setenv("TRACKER_TRACKER_WORKERS", "2")

	cfg, err := Load(newFlags(t, "--workers=8", "--sequential", "--limit=10", "--min-age=1.5"))
	require.NoError(t, err)

	assert.Equal(t, "legacy-key", cfg.Birdeye.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 8, cfg.Tracker.Workers, "flag wins over env")
	assert.True(t, cfg.Tracker.Sequential)
	assert.Equal(t, 10, cfg.Tracker.Limit)
	assert.InDelta(t, 1.5, cfg.Tracker.MinAgeHours, 1e-9)

	backend, target, err := cfg.Database.Backend()
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, backend)
	assert.Equal(t, "postgres://u:p@localhost/tracker", target)
}

func TestLoad_EnvFileAndYAML(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TRACKER_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TRACKER_LOG_LEVEL") })

	yamlFile := filepath.Join(dir, "tracker.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte("breaker:\n  failure_threshold: 5\ndead_letter:\n  path: /tmp/dl.json\n"), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--env-file=" + envFile, "--config=" + yamlFile}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, "/tmp/dl.json", cfg.DeadLetter.Path)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(newFlags(t))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero workers", func(c *Config) { c.Tracker.Workers = 0 }},
		{"negative limit", func(c *Config) { c.Tracker.Limit = -1 }},
		{"negative min age", func(c *Config) { c.Tracker.MinAgeHours = -2 }},
		{"zero threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }},
		{"shrinking escalation", func(c *Config) { c.Breaker.Escalation = 0.5 }},
		{"max below base", func(c *Config) { c.Breaker.MaxCooldown = time.Second }},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"zero dead letter cap", func(c *Config) { c.DeadLetter.MaxEntries = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad db scheme", func(c *Config) { c.Database.URL = "mysql://x" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.Birdeye.APIKey = ""
	assert.NoError(t, cfg.Validate(), "missing birdeye key degrades to fallback-only")
}

func TestBackend(t *testing.T) {
	tests := []struct {
		url     string
		backend string
		target  string
	}{
		{"", BackendSQLite, DefaultSQLitePath},
		{"memory", BackendMemory, ""},
		{"postgresql://h/db", BackendPostgres, "postgresql://h/db"},
		{"sqlite:///var/lib/tracker.db", BackendSQLite, "/var/lib/tracker.db"},
		{"data/tracker.db", BackendSQLite, "data/tracker.db"},
	}

	for _, tt := range tests {
		backend, target, err := DatabaseConfig{URL: tt.url}.Backend()
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.backend, backend, tt.url)
		assert.Equal(t, tt.target, target, tt.url)
	}
}
