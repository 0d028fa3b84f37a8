package revokesessions

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"salesforce-workers/internal/common/salesforce"
)

type Config struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxJobsActive      int           `mapstructure:"max_jobs_active"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxDelay           time.Duration `mapstructure:"max_delay"`
	RateLimitBackoff   time.Duration `mapstructure:"rate_limit_backoff"`
	ServerErrorBackoff time.Duration `mapstructure:"server_error_backoff"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`

	BaseURL        string        `mapstructure:"base_url"`
	APIVersion     string        `mapstructure:"api_version"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	AuditEnabled      bool          `mapstructure:"audit_enabled"`
	AuditTTL          time.Duration `mapstructure:"audit_ttl"`
	AuditHistoryLimit int           `mapstructure:"audit_history_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:            true,
		MaxJobsActive:      5,
		Timeout:            30 * time.Second,
		MaxDelay:           5 * time.Minute,
		RateLimitBackoff:   60 * time.Second,
		ServerErrorBackoff: 10 * time.Second,
		RetryBackoff:       5 * time.Second,
		APIVersion:         salesforce.DefaultAPIVersion,
		RequestTimeout:     30 * time.Second,
		AuditTTL:           30 * 24 * time.Hour,
		AuditHistoryLimit:  50,
	}
}

// Validate checks worker settings only. Salesforce credentials and the base URL
// are checked per job.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("max_delay must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.BaseURL != "" {
		if err := validateBaseURL(c.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}
	if c.AuditEnabled && c.AuditTTL <= 0 {
		return fmt.Errorf("audit_ttl must be positive when audit is enabled")
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
