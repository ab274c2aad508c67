package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// NodeConfig names this service instance. An empty ID gives the node a
// random identity at startup.
type NodeConfig struct {
	ID string `json:"id"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// PostgresConfig holds the durable store settings. An empty DSN keeps
// the node on the in-memory connector store.
type PostgresConfig struct {
	DSN string `json:"dsn"`
}

// InvokerConfig holds the remote-function invocation settings shared
// by every connector on this node.
type InvokerConfig struct {
	GlobalExecutorBudget int `json:"global_executor_budget"`
	RequestTimeoutS      int `json:"request_timeout_s"`
}

// ClusterConfig holds cross-cluster relay settings
type ClusterConfig struct {
	RemoteURLs []string `json:"remote_urls"`
	AdminToken string   `json:"admin_token"`
}

// CacheConfig holds metadata cache settings
type CacheConfig struct {
	L1TTL time.Duration `json:"l1_ttl"`
}

// DaemonConfig holds daemon-specific settings
type DaemonConfig struct {
	HTTPAddr      string `json:"http_addr"`
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"`     // "text" or "json"
	ConnectorSpec string `json:"connector_spec"` // connector YAML file, or a directory of them
	AuditLog      string `json:"audit_log"`      // invocation audit log file, empty disables
}

// TracingConfig holds OpenTelemetry export settings
type TracingConfig struct {
	Enabled    bool    `json:"enabled"`
	Exporter   string  `json:"exporter"`
	Endpoint   string  `json:"endpoint"`
	SampleRate float64 `json:"sample_rate"`
}

// MetricsConfig holds Prometheus export settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Node     NodeConfig     `json:"node"`
	Redis    RedisConfig    `json:"redis"`
	Postgres PostgresConfig `json:"postgres"`
	Invoker  InvokerConfig  `json:"invoker"`
	Cluster  ClusterConfig  `json:"cluster"`
	Cache    CacheConfig    `json:"cache"`
	Daemon   DaemonConfig   `json:"daemon"`
	Tracing  TracingConfig  `json:"tracing"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// RequestTimeout returns the configured request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Invoker.RequestTimeoutS) * time.Second
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		},
		Invoker: InvokerConfig{
			GlobalExecutorBudget: 32,
			RequestTimeoutS:      25,
		},
		Cache: CacheConfig{
			L1TTL: 10 * time.Second,
		},
		Daemon: DaemonConfig{
			HTTPAddr:  ":8080",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlp-http",
			Endpoint:   "localhost:4318",
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "meridian",
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MERIDIAN_NODE_ID"); v != "" {
		cfg.Node.ID = v
	}
	if v := os.Getenv("MERIDIAN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MERIDIAN_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MERIDIAN_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("MERIDIAN_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("MERIDIAN_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("MERIDIAN_CONNECTOR_SPEC"); v != "" {
		cfg.Daemon.ConnectorSpec = v
	}
	if v := os.Getenv("MERIDIAN_ADMIN_TOKEN"); v != "" {
		cfg.Cluster.AdminToken = v
	}
	if v := os.Getenv("MERIDIAN_REMOTE_URLS"); v != "" {
		urls := strings.Split(v, ",")
		cfg.Cluster.RemoteURLs = cfg.Cluster.RemoteURLs[:0]
		for _, u := range urls {
			if u = strings.TrimSpace(u); u != "" {
				cfg.Cluster.RemoteURLs = append(cfg.Cluster.RemoteURLs, u)
			}
		}
	}
	if v := os.Getenv("MERIDIAN_EXECUTOR_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Invoker.GlobalExecutorBudget = n
		}
	}
	if v := os.Getenv("MERIDIAN_REQUEST_TIMEOUT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Invoker.RequestTimeoutS = n
		}
	}
	if v := os.Getenv("MERIDIAN_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = v
	}
}
