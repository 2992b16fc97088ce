package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2000, cfg.DocsLimit)
	assert.Equal(t, 2000, cfg.PersonsLimit)
	assert.Equal(t, 5, cfg.RecsLimit)
	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, "0.0.0.0:25000", cfg.Addr())
	assert.Equal(t, 10000, cfg.QueueLimit)
	assert.Equal(t, "graphite", cfg.Telemetry)
	assert.Equal(t, "carbon:2003", cfg.CarbonAddr())
	assert.Equal(t, 60*time.Second, cfg.CloudWatch.Interval)
	assert.Equal(t, 320, cfg.Model.EmbeddingDim)
	assert.Equal(t, 128, cfg.Model.HiddenDim)
	assert.InDelta(t, 0.05, cfg.Model.LearningRate, 1e-12)
	assert.Zero(t, cfg.StatsInterval)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("RECOMMENDER_DOCS_LIMIT", "50")
	t.Setenv("RECOMMENDER_RECS_LIMIT", "3")
	t.Setenv("RECOMMENDER_TORCH_DEVICE", "CPU")
	t.Setenv("RECOMMENDER_PORT", "26000")
	t.Setenv("CARBON_HOST", "graphite.local")
	t.Setenv("CARBON_PORT", "2004")
	t.Setenv("RECOMMENDER_STATS_INTERVAL", "30s")
	t.Setenv("RECOMMENDER_MODEL_DROPOUT", "0.25")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.DocsLimit)
	assert.Equal(t, 3, cfg.RecsLimit)
	assert.Equal(t, "CPU", cfg.Device)
	assert.Equal(t, 26000, cfg.Port)
	assert.Equal(t, "graphite.local:2004", cfg.CarbonAddr())
	assert.Equal(t, 30*time.Second, cfg.StatsInterval)
	assert.InDelta(t, 0.25, cfg.Model.Dropout, 1e-12)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recomlive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
persons_limit: 7
telemetry: prometheus
metrics_addr: 127.0.0.1:9090
model:
  hidden_dim: 16
log:
  level: debug
`), 0o600))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.PersonsLimit)
	assert.Equal(t, "prometheus", cfg.Telemetry)
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
	assert.Equal(t, 16, cfg.Model.HiddenDim)
	assert.Equal(t, 320, cfg.Model.EmbeddingDim)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero docs", func(c *Config) { c.DocsLimit = 0 }, "docs_limit"},
		{"zero recs", func(c *Config) { c.RecsLimit = 0 }, "recs_limit"},
		{"empty device", func(c *Config) { c.Device = "" }, "device"},
		{"port range", func(c *Config) { c.Port = 70000 }, "port"},
		{"telemetry", func(c *Config) { c.Telemetry = "statsd" }, "telemetry"},
		{"carbon port", func(c *Config) { c.Carbon.Port = 0 }, "carbon.port"},
		{"dropout", func(c *Config) { c.Model.Dropout = 1 }, "model.dropout"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"cloudwatch interval", func(c *Config) { c.CloudWatch.Interval = 0 }, "cloudwatch.interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
