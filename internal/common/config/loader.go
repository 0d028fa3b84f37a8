// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvFileLoaded holds the .env path picked up by the last Load, empty if none.
var EnvFileLoaded string

func Load() (*Config, error) {
	EnvFileLoaded = loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional per-environment overlay

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	EnvFileLoaded = loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every scalar key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "salesforce-workers")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.registry_path", "")

	v.SetDefault("camunda.broker_address", "")
	v.SetDefault("camunda.plaintext", true)
	v.SetDefault("camunda.max_jobs_active", 10)
	v.SetDefault("camunda.timeout", 30000)
	v.SetDefault("camunda.request_timeout", 30000)

	v.SetDefault("salesforce.base_url", "")
	v.SetDefault("salesforce.api_version", "v59.0")
	v.SetDefault("salesforce.timeout", 30000)
	v.SetDefault("salesforce.auth.method", "")
	v.SetDefault("salesforce.auth.access_token", "")
	v.SetDefault("salesforce.auth.username", "")
	v.SetDefault("salesforce.auth.password", "")
	v.SetDefault("salesforce.auth.client_id", "")
	v.SetDefault("salesforce.auth.client_secret", "")
	v.SetDefault("salesforce.auth.refresh_token", "")
	v.SetDefault("salesforce.auth.token_url", "")

	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("database.redis.pool_size", 10)
	v.SetDefault("database.redis.min_idle_conns", 2)
	v.SetDefault("database.redis.dial_timeout", "5s")
	v.SetDefault("database.redis.read_timeout", "3s")
	v.SetDefault("database.redis.write_timeout", "3s")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.ttl", "720h")
	v.SetDefault("audit.history_limit", 50)
	v.SetDefault("audit.key_prefix", "salesforce:revocation")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.url", "nats://localhost:4222")
	v.SetDefault("events.subject_prefix", "salesforce-workers")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.address", ":8080")
	v.SetDefault("metrics.tracing_endpoint", "")
	v.SetDefault("metrics.tracing_insecure", false)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found and returns its path.
func loadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}

	return ""
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills credentials from their conventional env names when
// the config file leaves them empty.
func overrideEmptyConfig(cfg *Config) {
	sf := &cfg.Salesforce
	setIfEmpty(&sf.BaseURL, "SALESFORCE_BASE_URL")
	setIfEmpty(&sf.Auth.AccessToken, "SALESFORCE_ACCESS_TOKEN")
	setIfEmpty(&sf.Auth.Username, "SALESFORCE_USERNAME")
	setIfEmpty(&sf.Auth.Password, "SALESFORCE_PASSWORD")
	setIfEmpty(&sf.Auth.ClientID, "SALESFORCE_CLIENT_ID")
	setIfEmpty(&sf.Auth.ClientSecret, "SALESFORCE_CLIENT_SECRET")
	setIfEmpty(&sf.Auth.RefreshToken, "SALESFORCE_REFRESH_TOKEN")
	setIfEmpty(&sf.Auth.TokenURL, "SALESFORCE_TOKEN_URL")

	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	setIfEmpty(&cfg.Camunda.BrokerAddress, "ZEEBE_ADDRESS")
	setIfEmpty(&cfg.Metrics.TracingEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setIfEmpty(dst *string, envKey string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*dst = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Salesforce.APIVersion == "" {
		cfg.Salesforce.APIVersion = "v59.0"
	}
	if cfg.Salesforce.Timeout == 0 {
		cfg.Salesforce.Timeout = 30000
	}
	cfg.Salesforce.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Salesforce.BaseURL), "/")
	cfg.Salesforce.Auth.Method = strings.ToLower(strings.TrimSpace(cfg.Salesforce.Auth.Method))

	if cfg.Audit.TTL == 0 {
		cfg.Audit.TTL = 30 * 24 * time.Hour
	}
	if cfg.Audit.HistoryLimit == 0 {
		cfg.Audit.HistoryLimit = 50
	}
	if cfg.Audit.KeyPrefix == "" {
		cfg.Audit.KeyPrefix = "salesforce:revocation"
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "salesforce-workers"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":8080"
	}

	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
	for key, worker := range cfg.Workers {
		cfg.Workers[key] = withWorkerDefaults(worker)
	}
}

func withWorkerDefaults(worker WorkerConfig) WorkerConfig {
	if worker.MaxJobsActive == 0 {
		worker.MaxJobsActive = 5
	}
	if worker.Timeout == 0 {
		worker.Timeout = 30000
	}
	if worker.MaxRetries == 0 {
		worker.MaxRetries = 3
	}
	if worker.MaxDelay == 0 {
		worker.MaxDelay = 300000
	}
	if worker.RateLimitBackoff == 0 {
		worker.RateLimitBackoff = 60000
	}
	if worker.ServerErrorBackoff == 0 {
		worker.ServerErrorBackoff = 10000
	}
	return worker
}

// validateConfig validates critical configuration fields. Salesforce credentials
// are checked per job so a missing secret fails the job instead of the process.
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Audit.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when audit is enabled")
	}

	if cfg.Events.Enabled && cfg.Events.URL == "" {
		return fmt.Errorf("events.url is required when events are enabled")
	}

	if cfg.Audit.TTL < 0 {
		return fmt.Errorf("audit.ttl must not be negative")
	}

	for name, worker := range cfg.Workers {
		if worker.MaxJobsActive < 0 {
			return fmt.Errorf("workers.%s.max_jobs_active must not be negative", name)
		}
		if worker.Timeout < 0 || worker.MaxDelay < 0 {
			return fmt.Errorf("workers.%s durations must not be negative", name)
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return withWorkerDefaults(WorkerConfig{Enabled: true})
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
