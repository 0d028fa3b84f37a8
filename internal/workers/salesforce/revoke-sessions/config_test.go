package revokesessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "https base url", mutate: func(c *Config) { c.BaseURL = "https://acme.my.salesforce.com" }},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: "timeout"},
		{name: "zero max jobs", mutate: func(c *Config) { c.MaxJobsActive = 0 }, wantErr: "max_jobs_active"},
		{name: "negative max delay", mutate: func(c *Config) { c.MaxDelay = -time.Second }, wantErr: "max_delay"},
		{name: "zero request timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: "request_timeout"},
		{name: "base url without scheme", mutate: func(c *Config) { c.BaseURL = "acme.my.salesforce.com" }, wantErr: "base_url"},
		{name: "base url with ftp scheme", mutate: func(c *Config) { c.BaseURL = "ftp://acme.example.com" }, wantErr: "base_url"},
		{name: "audit without ttl", mutate: func(c *Config) { c.AuditEnabled = true; c.AuditTTL = 0 }, wantErr: "audit_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
