package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	ListenAddr     string            `yaml:"listen_addr"`
	UpstreamURL    string            `yaml:"upstream_url"`
	UpstreamAPIKey string            `yaml:"upstream_api_key"`
	ModelAliases   map[string]string `yaml:"model_aliases"`
	DatabaseURL    string            `yaml:"database_url"`
	DatabaseSchema string            `yaml:"database_schema"`
	MaxDBConns     int32             `yaml:"max_db_conns"`
	MinDBConns     int32             `yaml:"min_db_conns"`
	AuthRequired   bool              `yaml:"auth_required"`
	CORSOrigins    []string          `yaml:"cors_origins"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	TraceBufferSize    int `yaml:"trace_buffer_size"`
	TraceRetentionDays int `yaml:"trace_retention_days"`

	ModelCacheTTLSeconds int   `yaml:"model_cache_ttl_seconds"`
	MaxRequestBytes      int64 `yaml:"max_request_bytes"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	LogFormat      string `yaml:"log_format"`
}

// Load reads configuration from config.yaml and overrides with environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:           ":8080",
		DatabaseSchema:       "public",
		MaxDBConns:           25,
		MinDBConns:           5,
		TraceBufferSize:      10000,
		TraceRetentionDays:   7,
		ModelCacheTTLSeconds: 300,
		MaxRequestBytes:      10 << 20,
		LogFormat:            "json",
	}

	configPath := os.Getenv("MSGPROXY_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	overrideFromEnv(cfg)
	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("MSGPROXY_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MSGPROXY_UPSTREAM_URL"); v != "" {
		cfg.UpstreamURL = v
	}
	if v := os.Getenv("MSGPROXY_UPSTREAM_API_KEY"); v != "" {
		cfg.UpstreamAPIKey = v
	}
	if v := os.Getenv("MSGPROXY_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MSGPROXY_DATABASE_SCHEMA"); v != "" {
		cfg.DatabaseSchema = v
	}
	if v := os.Getenv("MSGPROXY_MAX_DB_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDBConns = int32(n)
		}
	}
	if v := os.Getenv("MSGPROXY_MIN_DB_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinDBConns = int32(n)
		}
	}
	if v := os.Getenv("MSGPROXY_AUTH_REQUIRED"); v != "" {
		cfg.AuthRequired = v == "true" || v == "1"
	}
	if v := os.Getenv("MSGPROXY_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("MSGPROXY_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("MSGPROXY_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("MSGPROXY_TRACE_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TraceBufferSize = n
		}
	}
	if v := os.Getenv("MSGPROXY_TRACE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TraceRetentionDays = n
		}
	}
	if v := os.Getenv("MSGPROXY_MODEL_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ModelCacheTTLSeconds = n
		}
	}
	if v := os.Getenv("MSGPROXY_MAX_REQUEST_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxRequestBytes = n
		}
	}
	if v := os.Getenv("MSGPROXY_METRICS_ENABLED"); v != "" {
		cfg.MetricsEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MSGPROXY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

// ResolveModel maps a client-facing model name through the configured
// aliases; unknown names pass through unchanged.
func (c *Config) ResolveModel(name string) string {
	if mapped, ok := c.ModelAliases[name]; ok {
		return mapped
	}
	return name
}
