// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig               `mapstructure:"app"`
	Camunda    CamundaConfig           `mapstructure:"camunda"`
	Salesforce SalesforceConfig        `mapstructure:"salesforce"`
	Database   DatabaseConfig          `mapstructure:"database"`
	Audit      AuditConfig             `mapstructure:"audit"`
	Events     EventsConfig            `mapstructure:"events"`
	Workers    map[string]WorkerConfig `mapstructure:"workers"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	Metrics    MetricsConfig           `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name         string `mapstructure:"name"`
	Version      string `mapstructure:"version"`
	Environment  string `mapstructure:"environment"`
	RegistryPath string `mapstructure:"registry_path"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the audit trail store. Zero pool and timeout values
// fall back to the database package defaults.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SalesforceConfig holds the connection defaults for the Salesforce REST API.
// BaseURL may be overridden per job by the "address" variable.
type SalesforceConfig struct {
	BaseURL    string               `mapstructure:"base_url"`
	APIVersion string               `mapstructure:"api_version"`
	Timeout    int                  `mapstructure:"timeout"` // milliseconds, per HTTP request
	Auth       SalesforceAuthConfig `mapstructure:"auth"`
}

// SalesforceAuthConfig selects one authentication scheme. Method is one of
// bearer, basic, oauth2_client_credentials, oauth2_authorization_code. When
// empty it is inferred from whichever material is present.
type SalesforceAuthConfig struct {
	Method       string   `mapstructure:"method"`
	AccessToken  string   `mapstructure:"access_token"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RefreshToken string   `mapstructure:"refresh_token"`
	TokenURL     string   `mapstructure:"token_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// AuditConfig controls the Redis revocation audit trail.
type AuditConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	TTL          time.Duration `mapstructure:"ttl"`
	HistoryLimit int           `mapstructure:"history_limit"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// EventsConfig controls publishing revocation outcomes to NATS.
type EventsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	MaxJobsActive      int  `mapstructure:"max_jobs_active"`
	Timeout            int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries         int  `mapstructure:"max_retries"` // For error handling
	MaxDelay           int  `mapstructure:"max_delay"`   // milliseconds
	RateLimitBackoff   int  `mapstructure:"rate_limit_backoff"`
	ServerErrorBackoff int  `mapstructure:"server_error_backoff"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds the health/metrics listener settings.
type MetricsConfig struct {
	Address         string `mapstructure:"address"`
	TracingEndpoint string `mapstructure:"tracing_endpoint"` // OTLP/gRPC collector, optional
	TracingInsecure bool   `mapstructure:"tracing_insecure"`
}
