package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string

	// logging
	LogLevel    string `toml:"log_level"`
	LogsPath    string `toml:"logs_path"`
	LogToStdout bool   `toml:"log_to_stdout"`

	// platform backend
	APIBaseURL      string `toml:"api_base_url"`
	RealtimeURL     string `toml:"realtime_url"`
	StorageBucket   string `toml:"storage_bucket"`
	FormCheckBucket string `toml:"form_check_bucket"`
	RequestTimeout  int    `toml:"request_timeout_seconds"`
	SessionCacheMB  int    `toml:"session_cache_mb"`
	SentryEnabled   bool   `toml:"sentry_enabled"`
	TracingEnabled  bool   `toml:"tracing_enabled"`
	VelocityLossPct int    `toml:"velocity_loss_stop_pct"`

	// local callback / deep link server
	CallbackHost string `toml:"callback_host"`
	CallbackPort int    `toml:"callback_port"`

	// prometheus metrics server
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlFile Toml
	if _, err := toml.DecodeFile(path, &tomlFile); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	cfg, err := tomlFile.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section for env [%s] missing", env)
	}

	cfg.Environment = env
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30
	}
	if cfg.SessionCacheMB <= 0 {
		cfg.SessionCacheMB = 16
	}
	if cfg.VelocityLossPct <= 0 {
		cfg.VelocityLossPct = 20
	}
	if cfg.StorageBucket == "" {
		cfg.StorageBucket = "avatars"
	}
	if cfg.FormCheckBucket == "" {
		cfg.FormCheckBucket = "form-check-videos"
	}

	return cfg, nil
}
