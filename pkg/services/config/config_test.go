package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Scheduler.MaxConcurrentJobs)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.JobTimeout)
	assert.Equal(t, 2, cfg.Scheduler.MaxRetries)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Analytics.RecomputeInterval)
	assert.Equal(t, "rolling_stddev", cfg.Insights.AnomalyModel)
	assert.InDelta(t, 0.05, cfg.Insights.MinBand, 1e-9)
	assert.Equal(t, "USD", cfg.Ingest.DefaultCurrency)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "advisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
scheduler:
  max_concurrent_jobs: 8
  job_timeout: 2m
store:
  driver: postgres
  dsn: postgres://advisor@localhost/advisor?sslmode=disable
insights:
  forecast_model: moving_average
`), 0o600))

	t.Setenv("ADVISOR_SCHEDULER_MAX_RETRIES", "5")
	t.Setenv("ADVISOR_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Scheduler.MaxConcurrentJobs)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.JobTimeout)
	assert.Equal(t, 5, cfg.Scheduler.MaxRetries, "environment wins over defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "moving_average", cfg.Insights.ForecastModel)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.LeaseGrace, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero workers", func(c *Config) { c.Scheduler.MaxConcurrentJobs = 0 }},
		{"zero timeout", func(c *Config) { c.Scheduler.JobTimeout = 0 }},
		{"negative retries", func(c *Config) { c.Scheduler.MaxRetries = -1 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres"; c.Store.DSN = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
