package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks the config for invalid or missing values. Returns a
// multi-error with all problems found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.ListenAddr == "" {
		errs = append(errs, "listen_addr is required")
	}
	if cfg.UpstreamURL == "" {
		errs = append(errs, "upstream_url is required")
	} else if u, err := url.Parse(cfg.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("upstream_url %q is not an absolute URL", cfg.UpstreamURL))
	}
	if cfg.UpstreamAPIKey == "" {
		errs = append(errs, "upstream_api_key is required")
	}
	if cfg.DatabaseURL == "" {
		errs = append(errs, "database_url is required")
	}
	if cfg.DatabaseSchema != "" && !schemaNamePattern.MatchString(cfg.DatabaseSchema) {
		errs = append(errs, "database_schema must match ^[a-z_][a-z0-9_]*$")
	}
	if cfg.MaxDBConns > 0 && cfg.MinDBConns > 0 && cfg.MaxDBConns <= cfg.MinDBConns {
		errs = append(errs, fmt.Sprintf("max_db_conns (%d) must be greater than min_db_conns (%d)", cfg.MaxDBConns, cfg.MinDBConns))
	}
	if cfg.RateLimitRPS < 0 {
		errs = append(errs, "rate_limit_rps must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		errs = append(errs, "rate_limit_burst must be >= 0")
	}
	if cfg.TraceBufferSize < 0 {
		errs = append(errs, "trace_buffer_size must be >= 0")
	}
	if cfg.TraceRetentionDays < 0 {
		errs = append(errs, "trace_retention_days must be >= 0")
	}
	if cfg.ModelCacheTTLSeconds < 0 {
		errs = append(errs, "model_cache_ttl_seconds must be >= 0")
	}
	if cfg.MaxRequestBytes <= 0 {
		errs = append(errs, "max_request_bytes must be > 0")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		errs = append(errs, fmt.Sprintf("log_format %q must be json or text", cfg.LogFormat))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed: " + strings.Join(errs, "; "))
	}
	return nil
}
