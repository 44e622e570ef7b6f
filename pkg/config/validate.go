package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Hawk.Port < 0 || c.Hawk.Port > 65535 {
		errs = append(errs, fmt.Errorf("hawk.port must be between 0 and 65535, got %d", c.Hawk.Port))
	}
	if c.Hawk.NonceTTL < 0 {
		errs = append(errs, fmt.Errorf("hawk.nonce_ttl must not be negative, got %s", c.Hawk.NonceTTL))
	}
	if c.Hawk.NonceCacheSize < 0 {
		errs = append(errs, fmt.Errorf("hawk.nonce_cache_size must not be negative, got %d", c.Hawk.NonceCacheSize))
	}
	if c.Hawk.MaxBewitTTL < 0 {
		errs = append(errs, fmt.Errorf("hawk.max_bewit_ttl must not be negative, got %s", c.Hawk.MaxBewitTTL))
	}

	switch c.Credentials.Store {
	case "memory", "sqlite":
	case "postgres":
		if c.Credentials.Postgres.DSN == "" && c.Credentials.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("credentials.postgres.dsn or credentials.postgres.dsn_file is required when credentials.store is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("credentials.store must be \"memory\", \"postgres\" or \"sqlite\", got %q", c.Credentials.Store))
	}
	if c.Credentials.Store == "sqlite" && c.Credentials.SQLite.Path == "" {
		errs = append(errs, fmt.Errorf("credentials.sqlite.path is required when credentials.store is \"sqlite\""))
	}

	seen := make(map[string]bool)
	for i, s := range c.Credentials.Static {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("credentials.static[%d].id is required", i))
		} else if seen[s.ID] {
			errs = append(errs, fmt.Errorf("credentials.static[%d].id %q is duplicated", i, s.ID))
		}
		seen[s.ID] = true
		if s.Key == "" && s.KeyFile == "" {
			errs = append(errs, fmt.Errorf("credentials.static[%d].key or key_file is required", i))
		}
		switch strings.ToLower(s.Algorithm) {
		case "", "sha256", "sha1":
		default:
			errs = append(errs, fmt.Errorf("credentials.static[%d].algorithm must be \"sha256\" or \"sha1\", got %q", i, s.Algorithm))
		}
	}

	switch c.Operator.Type {
	case "none":
	case "apikey":
		if len(c.Operator.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("operator.api_keys must not be empty when operator.type is \"apikey\""))
		}
		for i, k := range c.Operator.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("operator.api_keys[%d].key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("operator.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Operator.JWT.Secret == "" && c.Operator.JWT.SecretFile == "" {
			errs = append(errs, fmt.Errorf("operator.jwt.secret or operator.jwt.secret_file is required when operator.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("operator.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Operator.Type))
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_minute must not be negative, got %d", c.RateLimit.RequestsPerMinute))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}
