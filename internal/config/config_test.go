package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 330*time.Millisecond, cfg.Readiness.PollInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Anchor.Expiration)
	assert.Equal(t, 3*time.Second, cfg.Session.SettleDelay)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchorsync.yaml")
	yamlDoc := `
session:
  settle_delay: 0s
readiness:
  poll_interval: 100ms
  max_wait: 5s
anchor:
  expiration: 48h
storage:
  db_path: /tmp/anchors.db
simulator:
  progress_step: 0.5
server:
  port: 9090
  allowed_origins: ["http://localhost:3000"]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.Session.SettleDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Readiness.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Readiness.MaxWait)
	assert.Equal(t, 48*time.Hour, cfg.Anchor.Expiration)
	assert.Equal(t, "/tmp/anchors.db", cfg.Storage.DBPath)
	assert.Equal(t, 0.5, cfg.Simulator.ProgressStep)
	assert.Equal(t, 50*time.Millisecond, cfg.Simulator.LocateLatency, "unset keys keep defaults")
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("env beats file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "anchorsync.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage:\n  db_path: from-file.db\n"), 0644))
		t.Setenv("ANCHORSYNC_DB_PATH", "from-env.db")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env.db", cfg.Storage.DBPath)
	})

	t.Run("durations and lists", func(t *testing.T) {
		t.Setenv("ANCHORSYNC_MAX_WAIT", "90s")
		t.Setenv("ANCHORSYNC_ALLOWED_ORIGINS", "http://a,http://b")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, cfg.Readiness.MaxWait)
		assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)
	})

	t.Run("log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero poll":           func(c *Config) { c.Readiness.PollInterval = 0 },
		"max wait below poll": func(c *Config) { c.Readiness.MaxWait = time.Millisecond },
		"negative expiration": func(c *Config) { c.Anchor.Expiration = -time.Hour },
		"progress step > 1":   func(c *Config) { c.Simulator.ProgressStep = 2 },
		"empty db path":       func(c *Config) { c.Storage.DBPath = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Server.Port = 7000
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, loaded.Server.Port)
}
