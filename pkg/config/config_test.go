package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "treap", cfg.Engine.Kind)
	require.EqualValues(t, 150_000_000, cfg.Engine.MaxNodes)
	require.Equal(t, []int{100, 1000, 5000, 10000}, cfg.Compare.InsertSizes)
	require.Equal(t, 0.3, cfg.Compare.DeleteFraction)
	require.Equal(t, 30*time.Second, cfg.Ingest.Timeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
engine:
  kind: bst
  maxNodes: 1000
compare:
  insertSizes: [10, 20]
  recentKs: [3]
ingest:
  timeout: 5s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("PT_ENGINE_SEED", "77")
	t.Setenv("PT_SERVER_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "bst", cfg.Engine.Kind)
	require.EqualValues(t, 1000, cfg.Engine.MaxNodes)
	require.EqualValues(t, 77, cfg.Engine.Seed)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, []int{10, 20}, cfg.Compare.InsertSizes)
	require.Equal(t, []int{3}, cfg.Compare.RecentKs)
	require.Equal(t, 5*time.Second, cfg.Ingest.Timeout)
	// Untouched sections keep their defaults.
	require.Equal(t, []int{1000, 5000}, cfg.Compare.DeleteSizes)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad kind", func(c *Config) { c.Engine.Kind = "avl" }},
		{"negative ceiling", func(c *Config) { c.Engine.MaxNodes = -1 }},
		{"fraction above one", func(c *Config) { c.Compare.DeleteFraction = 1.5 }},
		{"zero insert size", func(c *Config) { c.Compare.InsertSizes = []int{0} }},
		{"kafka without topic", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Topics.PostEvents = ""
		}},
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"write limit without window", func(c *Config) {
			c.Server.WriteLimit = 10
			c.Server.WriteWindow = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
