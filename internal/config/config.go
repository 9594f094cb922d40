// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Queue struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Pass     string `mapstructure:"pass"`
	Name     string `mapstructure:"name"`
	DB       int    `mapstructure:"db"`
}

type Store struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UploadsBucket   string `mapstructure:"uploads_bucket"`
	WarehouseBucket string `mapstructure:"warehouse_bucket"`
	Region          string `mapstructure:"region"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

type Catalog struct {
	JDBCURL string `mapstructure:"jdbc_url"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
}

type JobStore struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type Backoff struct {
	Base time.Duration `mapstructure:"base"`
	Max  time.Duration `mapstructure:"max"`
}

type Worker struct {
	Count             int           `mapstructure:"count"`
	HeartbeatTTL      time.Duration `mapstructure:"heartbeat_ttl"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Backoff           Backoff       `mapstructure:"backoff"`
	BRPopLPushTimeout time.Duration `mapstructure:"brpoplpush_timeout"`
	BreakerPause      time.Duration `mapstructure:"breaker_pause"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type TracingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Environment      string  `mapstructure:"environment"`
	SamplingStrategy string  `mapstructure:"sampling_strategy"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

type ObservabilityConfig struct {
	MetricsPort int           `mapstructure:"metrics_port"`
	LogLevel    string        `mapstructure:"log_level"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

type Coordinator struct {
	APIPort          int           `mapstructure:"api_port"`
	FileMaxSize      int64         `mapstructure:"file_max_size"`
	RateLimitPerSec  float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
	AuditLogPath     string        `mapstructure:"audit_log_path"`
	AuditLogMaxSizeMB int          `mapstructure:"audit_log_max_size_mb"`
	AuditLogBackups  int           `mapstructure:"audit_log_backups"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
}

type Config struct {
	Queue          Queue               `mapstructure:"queue"`
	Store          Store               `mapstructure:"store"`
	Catalog        Catalog             `mapstructure:"catalog"`
	JobStore       JobStore            `mapstructure:"jobstore"`
	WarehousePath  string              `mapstructure:"warehouse_path"`
	JobTTLSeconds  int                 `mapstructure:"job_ttl_seconds"`
	PreviewMaxRows int                 `mapstructure:"preview_max_rows"`
	Worker         Worker              `mapstructure:"worker"`
	CircuitBreaker CircuitBreaker      `mapstructure:"circuit_breaker"`
	Observability  ObservabilityConfig `mapstructure:"observability"`
	Coordinator    Coordinator         `mapstructure:"coordinator"`
}

func defaultConfig() *Config {
	return &Config{
		JobTTLSeconds:  3600,
		PreviewMaxRows: 10000,
		Worker: Worker{
			Count:             8,
			HeartbeatTTL:      30 * time.Second,
			MaxRetries:        3,
			Backoff:           Backoff{Base: 500 * time.Millisecond, Max: 10 * time.Second},
			BRPopLPushTimeout: 1 * time.Second,
			BreakerPause:      100 * time.Millisecond,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       20,
		},
		Observability: ObservabilityConfig{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing:     TracingConfig{Enabled: false, SamplingStrategy: "probabilistic", SamplingRate: 0.1},
		},
		Coordinator: Coordinator{
			APIPort:           8080,
			FileMaxSize:       100 * 1024 * 1024,
			RateLimitPerSec:   50,
			RateLimitBurst:    100,
			AuditLogPath:      "./logs/audit.log",
			AuditLogMaxSizeMB: 100,
			AuditLogBackups:   5,
			ShutdownTimeout:   10 * time.Second,
		},
	}
}

// Load reads configuration from an optional YAML file plus environment
// overrides (QUEUE_HOST, STORE_ENDPOINT, ... per the env-var surface),
// applying defaults for api_port/file_max_size/job_ttl_seconds/
// preview_max_rows and validating the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("job_ttl_seconds", def.JobTTLSeconds)
	v.SetDefault("preview_max_rows", def.PreviewMaxRows)
	v.SetDefault("coordinator.api_port", def.Coordinator.APIPort)
	v.SetDefault("coordinator.file_max_size", def.Coordinator.FileMaxSize)
	v.SetDefault("coordinator.rate_limit_per_sec", def.Coordinator.RateLimitPerSec)
	v.SetDefault("coordinator.rate_limit_burst", def.Coordinator.RateLimitBurst)
	v.SetDefault("coordinator.audit_log_path", def.Coordinator.AuditLogPath)
	v.SetDefault("coordinator.audit_log_max_size_mb", def.Coordinator.AuditLogMaxSizeMB)
	v.SetDefault("coordinator.audit_log_backups", def.Coordinator.AuditLogBackups)
	v.SetDefault("coordinator.shutdown_timeout", def.Coordinator.ShutdownTimeout)

	v.SetDefault("worker.count", def.Worker.Count)
	v.SetDefault("worker.heartbeat_ttl", def.Worker.HeartbeatTTL)
	v.SetDefault("worker.max_retries", def.Worker.MaxRetries)
	v.SetDefault("worker.backoff.base", def.Worker.Backoff.Base)
	v.SetDefault("worker.backoff.max", def.Worker.Backoff.Max)
	v.SetDefault("worker.brpoplpush_timeout", def.Worker.BRPopLPushTimeout)
	v.SetDefault("worker.breaker_pause", def.Worker.BreakerPause)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.sampling_strategy", def.Observability.Tracing.SamplingStrategy)
	v.SetDefault("observability.tracing.sampling_rate", def.Observability.Tracing.SamplingRate)

	// External-facing env vars, mapped onto the nested mapstructure keys.
	bind(v, "queue.host", "QUEUE_HOST")
	bind(v, "queue.port", "QUEUE_PORT")
	bind(v, "queue.user", "QUEUE_USER")
	bind(v, "queue.pass", "QUEUE_PASS")
	bind(v, "queue.name", "QUEUE_NAME")
	bind(v, "store.endpoint", "STORE_ENDPOINT")
	bind(v, "store.access_key", "STORE_ACCESS_KEY")
	bind(v, "store.secret_key", "STORE_SECRET_KEY")
	bind(v, "store.uploads_bucket", "UPLOADS_BUCKET")
	bind(v, "store.warehouse_bucket", "WAREHOUSE_BUCKET")
	bind(v, "catalog.jdbc_url", "CATALOG_JDBC_URL")
	bind(v, "catalog.user", "CATALOG_USER")
	bind(v, "catalog.pass", "CATALOG_PASS")
	bind(v, "jobstore.host", "JOBSTORE_HOST")
	bind(v, "jobstore.port", "JOBSTORE_PORT")
	bind(v, "warehouse_path", "WAREHOUSE_PATH")
	bind(v, "coordinator.api_port", "API_PORT")
	bind(v, "coordinator.file_max_size", "FILE_MAX_SIZE")
	bind(v, "job_ttl_seconds", "JOB_TTL_SECONDS")
	bind(v, "preview_max_rows", "PREVIEW_MAX_ROWS")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bind(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}

// Validate checks config constraints. Missing required variables are all
// collected into one error so an operator sees the whole list at once;
// the range checks that follow return on the first violation.
func Validate(cfg *Config) error {
	var missing []string
	if cfg.Queue.Host == "" {
		missing = append(missing, "QUEUE_HOST")
	}
	if cfg.Store.Endpoint == "" {
		missing = append(missing, "STORE_ENDPOINT")
	}
	if cfg.Store.UploadsBucket == "" {
		missing = append(missing, "UPLOADS_BUCKET")
	}
	if cfg.Store.WarehouseBucket == "" {
		missing = append(missing, "WAREHOUSE_BUCKET")
	}
	if cfg.Catalog.JDBCURL == "" {
		missing = append(missing, "CATALOG_JDBC_URL")
	}
	if cfg.JobStore.Host == "" {
		missing = append(missing, "JOBSTORE_HOST")
	}
	if cfg.WarehousePath == "" {
		missing = append(missing, "WAREHOUSE_PATH")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if cfg.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be >= 1")
	}
	if cfg.Worker.HeartbeatTTL < 5*time.Second {
		return fmt.Errorf("worker.heartbeat_ttl must be >= 5s")
	}
	if cfg.Worker.BRPopLPushTimeout <= 0 || cfg.Worker.BRPopLPushTimeout > cfg.Worker.HeartbeatTTL/2 {
		return fmt.Errorf("worker.brpoplpush_timeout must be >0 and <= heartbeat_ttl/2")
	}
	if cfg.Coordinator.APIPort <= 0 || cfg.Coordinator.APIPort > 65535 {
		return fmt.Errorf("coordinator.api_port must be 1..65535")
	}
	if cfg.Coordinator.FileMaxSize <= 0 {
		return fmt.Errorf("coordinator.file_max_size must be > 0")
	}
	if cfg.JobTTLSeconds <= 0 {
		return fmt.Errorf("job_ttl_seconds must be > 0")
	}
	if cfg.PreviewMaxRows <= 0 {
		return fmt.Errorf("preview_max_rows must be > 0")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
