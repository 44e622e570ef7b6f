package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, HAWKGATE_CONFIG env, ./config.yaml, /etc/hawkgate/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. HAWKGATE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/hawkgate/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("HAWKGATE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/hawkgate/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps HAWKGATE_* environment variables to config fields.
// Malformed numbers and durations are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HAWKGATE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HAWKGATE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("HAWKGATE_HOST"); v != "" {
		cfg.Hawk.Host = v
	}
	if v := os.Getenv("HAWKGATE_HAWK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HAWKGATE_HAWK_PORT: %w", err)
		}
		cfg.Hawk.Port = port
	}
	if v := os.Getenv("HAWKGATE_TRUST_FORWARDED"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HAWKGATE_TRUST_FORWARDED: %w", err)
		}
		cfg.Hawk.TrustForwarded = trust
	}
	if v := os.Getenv("HAWKGATE_NONCE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HAWKGATE_NONCE_TTL: %w", err)
		}
		cfg.Hawk.NonceTTL = d
	}
	if v := os.Getenv("HAWKGATE_CREDENTIAL_STORE"); v != "" {
		cfg.Credentials.Store = v
	}
	if v := os.Getenv("HAWKGATE_POSTGRES_DSN"); v != "" {
		cfg.Credentials.Postgres.DSN = v
	}
	if v := os.Getenv("HAWKGATE_SQLITE_PATH"); v != "" {
		cfg.Credentials.SQLite.Path = v
	}
	if v := os.Getenv("HAWKGATE_OPERATOR_TYPE"); v != "" {
		cfg.Operator.Type = v
	}
	if v := os.Getenv("HAWKGATE_JWT_SECRET"); v != "" {
		cfg.Operator.JWT.Secret = v
	}
	if v := os.Getenv("HAWKGATE_RATE_LIMIT_RPM"); v != "" {
		rpm, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HAWKGATE_RATE_LIMIT_RPM: %w", err)
		}
		cfg.RateLimit.RequestsPerMinute = rpm
	}
	if v := os.Getenv("HAWKGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// HAWKGATE_CREDENTIALS: JSON array of static credentials.
	if v := os.Getenv("HAWKGATE_CREDENTIALS"); v != "" {
		var creds []StaticCredential
		if err := json.Unmarshal([]byte(v), &creds); err != nil {
			return fmt.Errorf("HAWKGATE_CREDENTIALS: %w", err)
		}
		cfg.Credentials.Static = creds
	}

	// HAWKGATE_OPERATOR_KEYS: JSON array of operator API keys.
	if v := os.Getenv("HAWKGATE_OPERATOR_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("HAWKGATE_OPERATOR_KEYS: %w", err)
		}
		cfg.Operator.APIKeys = keys
	}

	return nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// credentials.postgres.dsn_file -> credentials.postgres.dsn
	if cfg.Credentials.Postgres.DSNFile != "" && cfg.Credentials.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Credentials.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("credentials.postgres.dsn_file: %w", err)
		}
		cfg.Credentials.Postgres.DSN = val
	}

	// credentials.static[*].key_file -> credentials.static[*].key
	for i := range cfg.Credentials.Static {
		c := &cfg.Credentials.Static[i]
		if c.KeyFile != "" && c.Key == "" {
			val, err := readSecretFile(c.KeyFile)
			if err != nil {
				return fmt.Errorf("credentials.static[%d].key_file: %w", i, err)
			}
			c.Key = val
		}
	}

	// operator.api_keys[*].key_file -> operator.api_keys[*].key
	for i := range cfg.Operator.APIKeys {
		k := &cfg.Operator.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("operator.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	// operator.jwt.secret_file -> operator.jwt.secret
	if cfg.Operator.JWT.SecretFile != "" && cfg.Operator.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Operator.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("operator.jwt.secret_file: %w", err)
		}
		cfg.Operator.JWT.Secret = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
