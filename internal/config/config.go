package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the API server, the worker and the
// compute backend. Each process validates only the sections it uses.
type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Broker   BrokerConfig
	Worker   WorkerConfig
	Fetch    FetchConfig
	Dispatch DispatchConfig
	Artifact ArtifactConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
	MaxBodyBytes       int64
	SummaryCacheTTL    time.Duration
}

type AuthConfig struct {
	APIKey     string
	APIKeyHash string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type BrokerConfig struct {
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
	JobRetention time.Duration
}

type WorkerConfig struct {
	Concurrency    int
	TaskTimeLimit  time.Duration
	ClaimWait      time.Duration
	ReaperInterval time.Duration
}

type FetchConfig struct {
	Timeout   time.Duration
	UserAgent string
}

type DispatchConfig struct {
	CloudRunURL     string
	Timeout         time.Duration
	ComputeAudience string
}

type ArtifactConfig struct {
	Bucket string
}

const defaultUserAgent = "mmmqueue-worker/1.0 (+https://github.com/kiranshivaraju/mmmqueue)"

// Load reads configuration from environment variables and checks the values
// shared by every process. Call one of the Validate methods for role checks.
func Load() (*Config, error) {
	taskLimit := envDurationSecs("TASK_TIME_LIMIT", 600*time.Second)

	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("PORT", 8080),
			Env:                envString("MMM_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
			MaxBodyBytes:       int64(envInt("MAX_BODY_BYTES", 32<<20)),
			SummaryCacheTTL:    envDuration("SUMMARY_CACHE_TTL", time.Hour),
		},
		Auth: AuthConfig{
			APIKey:     os.Getenv("API_KEY"),
			APIKeyHash: os.Getenv("API_KEY_HASH"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Broker: BrokerConfig{
			MaxRetries:   envInt("BROKER_MAX_RETRIES", 0),
			RetryInitial: envDuration("BROKER_RETRY_INITIAL", time.Second),
			RetryMax:     envDuration("BROKER_RETRY_MAX", 30*time.Second),
			JobRetention: envDuration("JOB_RETENTION", 24*time.Hour),
		},
		Worker: WorkerConfig{
			Concurrency:    envInt("WORKER_CONCURRENCY", 2),
			TaskTimeLimit:  taskLimit,
			ClaimWait:      envDuration("CLAIM_WAIT", 5*time.Second),
			ReaperInterval: envDuration("REAPER_INTERVAL", time.Minute),
		},
		Fetch: FetchConfig{
			Timeout:   envDuration("FETCH_TIMEOUT", 60*time.Second),
			UserAgent: envString("FETCH_USER_AGENT", defaultUserAgent),
		},
		Dispatch: DispatchConfig{
			CloudRunURL:     strings.TrimRight(os.Getenv("CLOUD_RUN_URL"), "/"),
			Timeout:         envDuration("DISPATCH_TIMEOUT", taskLimit),
			ComputeAudience: os.Getenv("COMPUTE_AUDIENCE"),
		},
		Artifact: ArtifactConfig{
			Bucket: envString("MODEL_BUCKET", "bayes-gpt-models"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.TaskTimeLimit <= 0 {
		return fmt.Errorf("TASK_TIME_LIMIT must be positive")
	}
	if c.Broker.MaxRetries < 0 {
		return fmt.Errorf("BROKER_MAX_RETRIES must be 0 (unbounded) or positive, got %d", c.Broker.MaxRetries)
	}
	if c.Dispatch.CloudRunURL != "" && !isHTTPURL(c.Dispatch.CloudRunURL) {
		return fmt.Errorf("CLOUD_RUN_URL must start with http:// or https://, got %q", c.Dispatch.CloudRunURL)
	}
	if c.Artifact.Bucket == "" {
		return fmt.Errorf("MODEL_BUCKET must not be empty")
	}
	return nil
}

// ValidateServer checks the settings the API server needs.
func (c *Config) ValidateServer() error {
	if c.Auth.APIKey == "" && c.Auth.APIKeyHash == "" {
		return fmt.Errorf("API_KEY or API_KEY_HASH is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// ValidateWorker checks the settings the worker needs. Fits that run in
// process write artifacts, so DATABASE_URL is required unless the worker
// dispatches to a remote compute backend.
func (c *Config) ValidateWorker() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !c.RemoteDispatch() && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when CLOUD_RUN_URL is not set")
	}
	return nil
}

// ValidateCompute checks the settings the compute backend needs.
func (c *Config) ValidateCompute() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// RemoteDispatch reports whether fits are forwarded to a compute backend.
func (c *Config) RemoteDispatch() bool {
	return c.Dispatch.CloudRunURL != ""
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envDurationSecs accepts either a bare number of seconds or a Go duration.
func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
