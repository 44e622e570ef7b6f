// Package config provides unified configuration for the hawkgate server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (HAWKGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the hawkgate server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Hawk          HawkConfig          `yaml:"hawk"`
	Credentials   CredentialsConfig   `yaml:"credentials"`
	Operator      OperatorConfig      `yaml:"operator"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 60s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
}

// HawkConfig holds request verification settings.
type HawkConfig struct {
	// Host and Port override the values taken from the Host header.
	// Set them when the gateway runs behind a proxy that rewrites Host.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	TrustForwarded bool          `yaml:"trust_forwarded"`  // default: false
	NonceTTL       time.Duration `yaml:"nonce_ttl"`        // default: 2m
	NonceCacheSize int           `yaml:"nonce_cache_size"` // default: 100000
	MaxBewitTTL    time.Duration `yaml:"max_bewit_ttl"`    // default: 24h
}

// CredentialsConfig selects and configures the credential store.
type CredentialsConfig struct {
	Store    string             `yaml:"store"` // "memory", "postgres" or "sqlite", default: "memory"
	Postgres PostgresConfig     `yaml:"postgres"`
	SQLite   SQLiteConfig       `yaml:"sqlite"`
	Static   []StaticCredential `yaml:"static"` // seeded into the store at startup
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: "hawkgate.db"
}

// StaticCredential is a credential declared in configuration.
type StaticCredential struct {
	ID        string `yaml:"id" json:"id"`
	Key       string `yaml:"key" json:"key"`
	KeyFile   string `yaml:"key_file" json:"key_file"` // _file variant for key
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	User      string `yaml:"user" json:"user"`
}

// OperatorConfig holds admin API authentication settings.
type OperatorConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`
}

// APIKeyConfig describes a single operator API key.
type APIKeyConfig struct {
	Key     string   `yaml:"key" json:"key"`
	KeyFile string   `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject string   `yaml:"subject" json:"subject"`
	Scopes  []string `yaml:"scopes" json:"scopes"`
}

// JWTConfig holds settings for HS256 operator tokens.
type JWTConfig struct {
	Secret      string        `yaml:"secret"`
	SecretFile  string        `yaml:"secret_file"` // _file variant for secret
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	ScopesClaim string        `yaml:"scopes_claim"` // default: "scope"
	Leeway      time.Duration `yaml:"leeway"`       // default: 30s
}

// RateLimitConfig holds per-user request limits for guarded endpoints.
type RateLimitConfig struct {
	RequestsPerMinute int            `yaml:"requests_per_minute"` // 0 disables
	Overrides         map[string]int `yaml:"overrides"`           // keyed by user, or credential id
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "INFO"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Hawk: HawkConfig{
			NonceTTL:       2 * time.Minute,
			NonceCacheSize: 100000,
			MaxBewitTTL:    24 * time.Hour,
		},
		Credentials: CredentialsConfig{
			Store: "memory",
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
			SQLite: SQLiteConfig{
				Path: "hawkgate.db",
			},
		},
		Operator: OperatorConfig{
			Type: "none",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
