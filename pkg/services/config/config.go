// Package config loads service settings from an optional YAML file and ADVISOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "ADVISOR"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Insights  InsightsConfig  `mapstructure:"insights"`
	Costs     CostsConfig     `mapstructure:"costs"`
	Azure     AzureConfig     `mapstructure:"azure"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type SchedulerConfig struct {
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	LeaseGrace        time.Duration `mapstructure:"lease_grace"`
	ReapInterval      time.Duration `mapstructure:"reap_interval"`
	BatchSize         int           `mapstructure:"batch_size"`
}

type IngestConfig struct {
	DefaultCurrency string `mapstructure:"default_currency"`
	UploadDir       string `mapstructure:"upload_dir"`
}

type AnalyticsConfig struct {
	RecomputeInterval time.Duration `mapstructure:"recompute_interval"`
}

type InsightsConfig struct {
	Schedule      string  `mapstructure:"schedule"`
	AnomalyModel  string  `mapstructure:"anomaly_model"`
	ForecastModel string  `mapstructure:"forecast_model"`
	Window        int     `mapstructure:"window"`
	K             float64 `mapstructure:"k"`
	MinBand       float64 `mapstructure:"min_band"`
	MinHistory    int     `mapstructure:"min_history"`
	Lookback      int     `mapstructure:"lookback_days"`
	Horizon       int     `mapstructure:"horizon_days"`
}

type CostsConfig struct {
	SyncSchedule  string   `mapstructure:"sync_schedule"`
	SyncDays      int      `mapstructure:"sync_days"`
	Subscriptions []string `mapstructure:"subscriptions"`
}

type AzureConfig struct {
	Profile           string  `mapstructure:"profile"`
	ConfigPath        string  `mapstructure:"config_path"`
	SubscriptionID    string  `mapstructure:"subscription_id"`
	TenantID          string  `mapstructure:"tenant_id"`
	ClientID          string  `mapstructure:"client_id"`
	ClientSecret      string  `mapstructure:"client_secret"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.read_timeout":     "15s",
	"server.write_timeout":    "60s",
	"server.shutdown_timeout": "20s",

	"log.level": "info",

	"store.driver":            "memory",
	"store.dsn":               "",
	"store.max_open_conns":    10,
	"store.max_idle_conns":    5,
	"store.conn_max_lifetime": "30m",

	"scheduler.max_concurrent_jobs": 4,
	"scheduler.job_timeout":         "10m",
	"scheduler.max_retries":         2,
	"scheduler.lease_grace":         "30s",
	"scheduler.reap_interval":       "30s",
	"scheduler.batch_size":          100,

	"ingest.default_currency": "USD",
	"ingest.upload_dir":       "uploads",

	"analytics.recompute_interval": "5m",

	"insights.schedule":       "@hourly",
	"insights.anomaly_model":  "rolling_stddev",
	"insights.forecast_model": "linear_trend",
	"insights.window":         7,
	"insights.k":              3.0,
	"insights.min_band":       0.05,
	"insights.min_history":    14,
	"insights.lookback_days":  90,
	"insights.horizon_days":   30,

	"costs.sync_schedule": "@daily",
	"costs.sync_days":     7,
	"costs.subscriptions": []string{},

	"azure.profile":             "default",
	"azure.config_path":         "",
	"azure.subscription_id":     "",
	"azure.tenant_id":           "",
	"azure.client_id":           "",
	"azure.client_secret":       "",
	"azure.requests_per_second": 5.0,
	"azure.burst":               5,

	"tracing.enabled":      false,
	"tracing.service_name": "advisor-reports",
}

// Load reads path when it is not empty, then applies environment overrides
// such as ADVISOR_SCHEDULER_MAX_RETRIES.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d is out of range", c.Server.Port)
	check(c.Store.Driver == "memory" || c.Store.Driver == "postgres", "store.driver must be memory or postgres, got %q", c.Store.Driver)
	check(c.Store.Driver != "postgres" || c.Store.DSN != "", "store.dsn is required for the postgres driver")
	check(c.Scheduler.MaxConcurrentJobs > 0, "scheduler.max_concurrent_jobs must be positive")
	check(c.Scheduler.JobTimeout > 0, "scheduler.job_timeout must be positive")
	check(c.Scheduler.MaxRetries >= 0, "scheduler.max_retries must not be negative")
	check(c.Scheduler.ReapInterval > 0, "scheduler.reap_interval must be positive")
	check(c.Scheduler.BatchSize > 0, "scheduler.batch_size must be positive")
	check(c.Analytics.RecomputeInterval > 0, "analytics.recompute_interval must be positive")
	check(c.Insights.Window > 0, "insights.window must be positive")
	check(c.Insights.Horizon > 0, "insights.horizon_days must be positive")
	check(c.Costs.SyncDays > 0, "costs.sync_days must be positive")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
