package revokesessions

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"salesforce-workers/internal/common/config"
	"salesforce-workers/internal/common/errors"
	"salesforce-workers/internal/common/logger"
	"salesforce-workers/internal/common/salesforce"
	"salesforce-workers/pkg/registry"
)

// fakeGateway records the job commands a handler sends to the broker.
type fakeGateway struct {
	pb.GatewayClient

	mu        sync.Mutex
	completed []*pb.CompleteJobRequest
	failed    []*pb.FailJobRequest
	thrown    []*pb.ThrowErrorRequest
}

func (g *fakeGateway) CompleteJob(_ context.Context, req *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = append(g.completed, req)
	return &pb.CompleteJobResponse{}, nil
}

func (g *fakeGateway) FailJob(_ context.Context, req *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed = append(g.failed, req)
	return &pb.FailJobResponse{}, nil
}

func (g *fakeGateway) ThrowError(_ context.Context, req *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thrown = append(g.thrown, req)
	return &pb.ThrowErrorResponse{}, nil
}

func noRetry(context.Context, error) bool { return false }

type fakeJobClient struct {
	gateway *fakeGateway
}

func (c *fakeJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, noRetry)
}

func (c *fakeJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, noRetry)
}

func (c *fakeJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, noRetry)
}

func newJob(t *testing.T, variables map[string]interface{}) entities.Job {
	t.Helper()
	payload, err := json.Marshal(variables)
	require.NoError(t, err)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                2251799813685249,
		Type:               TaskType,
		ProcessInstanceKey: 2251799813685001,
		Retries:            3,
		Variables:          string(payload),
	}}
}

func decodeVariables(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	vars := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(raw), &vars))
	return vars
}

type handlerFixture struct {
	*serviceFixture
	handler *Handler
	gateway *fakeGateway
	client  *fakeJobClient
}

func newHandlerFixture(t *testing.T, mutate func(cfg *Config)) *handlerFixture {
	t.Helper()

	sf := newServiceFixture(t, nil)

	cfg := DefaultConfig()
	cfg.BaseURL = sf.server.URL
	cfg.ServerErrorBackoff = 10 * time.Second
	cfg.RateLimitBackoff = 60 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	handler, err := NewHandler(HandlerOptions{
		CustomConfig:  cfg,
		Logger:        logger.NewTestLogger(t),
		Authenticator: salesforce.NewAuthenticator(salesforce.Credentials{AccessToken: "test-token"}, nil),
		Auditor:       sf.auditor,
		HTTPClient:    sf.server.Client(),
	})
	require.NoError(t, err)

	gateway := &fakeGateway{}
	return &handlerFixture{
		serviceFixture: sf,
		handler:        handler,
		gateway:        gateway,
		client:         &fakeJobClient{gateway: gateway},
	}
}

func TestHandle_CompletesJob(t *testing.T) {
	f := newHandlerFixture(t, nil)
	f.org.userIDs = []string{"u1"}
	f.org.sessionIDs = []string{"s1", "s2"}
	f.org.deleteStatus["s2"] = http.StatusNotFound

	job := newJob(t, map[string]interface{}{"username": "john.doe@company.com"})
	require.NoError(t, f.handler.Handle(f.client, job))

	require.Len(t, f.gateway.completed, 1)
	assert.Empty(t, f.gateway.failed)
	assert.Empty(t, f.gateway.thrown)

	req := f.gateway.completed[0]
	assert.Equal(t, job.GetKey(), req.JobKey)

	vars := decodeVariables(t, req.Variables)
	assert.Equal(t, StatusSuccess, vars["status"])
	assert.Equal(t, "john.doe@company.com", vars["username"])
	assert.Equal(t, "u1", vars["userId"])
	assert.EqualValues(t, 2, vars["sessionsRevoked"])
	assert.Equal(t, f.server.URL, vars["address"])

	processedAt, err := time.Parse(time.RFC3339, vars["processed_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), processedAt, time.Minute)
}

func TestHandle_ReportsErrors(t *testing.T) {
	tests := []struct {
		name        string
		variables   map[string]interface{}
		setup       func(org *fakeOrg)
		wantThrown  string
		wantBackoff time.Duration
	}{
		{
			name:       "missing username",
			variables:  map[string]interface{}{},
			wantThrown: "INPUT_REQUIRED",
		},
		{
			name:       "username of wrong type",
			variables:  map[string]interface{}{"username": 42},
			wantThrown: "VALIDATION_FAILED",
		},
		{
			name:       "invalid delay",
			variables:  map[string]interface{}{"username": "jane@company.com", "delay": "soon"},
			wantThrown: "VALIDATION_FAILED",
		},
		{
			name:       "delay beyond duration range",
			variables:  map[string]interface{}{"username": "jane@company.com", "delay": 1e20},
			wantThrown: "VALIDATION_FAILED",
		},
		{
			name:       "user not found",
			variables:  map[string]interface{}{"username": "ghost@company.com"},
			wantThrown: "USER_NOT_FOUND",
		},
		{
			name:      "user query unauthorized",
			variables: map[string]interface{}{"username": "jane@company.com"},
			setup: func(org *fakeOrg) {
				org.userStatus = http.StatusUnauthorized
			},
			wantThrown: "USER_QUERY_FAILED",
		},
		{
			name:      "user query unavailable",
			variables: map[string]interface{}{"username": "jane@company.com"},
			setup: func(org *fakeOrg) {
				org.userStatus = http.StatusServiceUnavailable
			},
			wantBackoff: 10 * time.Second,
		},
		{
			name:      "session query rate limited",
			variables: map[string]interface{}{"username": "jane@company.com"},
			setup: func(org *fakeOrg) {
				org.userIDs = []string{"u1"}
				org.sessionStatus = http.StatusTooManyRequests
			},
			wantBackoff: 60 * time.Second,
		},
		{
			name:      "session query rate limited with retry-after",
			variables: map[string]interface{}{"username": "jane@company.com"},
			setup: func(org *fakeOrg) {
				org.userIDs = []string{"u1"}
				org.sessionStatus = http.StatusTooManyRequests
				org.retryAfter = "7"
			},
			wantBackoff: 7 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t, nil)
			if tt.setup != nil {
				tt.setup(f.org)
			}

			job := newJob(t, tt.variables)
			require.Error(t, f.handler.Handle(f.client, job))
			assert.Empty(t, f.gateway.completed)

			if tt.wantThrown != "" {
				require.Len(t, f.gateway.thrown, 1)
				assert.Empty(t, f.gateway.failed)
				req := f.gateway.thrown[0]
				assert.Equal(t, job.GetKey(), req.JobKey)
				assert.Equal(t, tt.wantThrown, req.ErrorCode)

				vars := decodeVariables(t, req.Variables)
				assert.Equal(t, tt.wantThrown, vars["errorCode"])
				assert.Equal(t, false, vars["retryable"])
				return
			}

			require.Len(t, f.gateway.failed, 1)
			assert.Empty(t, f.gateway.thrown)
			req := f.gateway.failed[0]
			assert.Equal(t, job.GetKey(), req.JobKey)
			assert.Equal(t, int32(2), req.Retries)
			assert.Equal(t, tt.wantBackoff.Milliseconds(), req.RetryBackOff)

			vars := decodeVariables(t, req.Variables)
			assert.Equal(t, true, vars["retryable"])
		})
	}
}

func TestHandle_HaltedOnShutdown(t *testing.T) {
	f := newHandlerFixture(t, nil)
	f.org.userIDs = []string{"u1"}
	f.org.sessionIDs = []string{"s1"}

	f.handler.Close(context.Background())

	job := newJob(t, map[string]interface{}{"username": "jane@company.com", "delay": "PT1M"})
	require.NoError(t, f.handler.Handle(f.client, job))

	assert.Empty(t, f.gateway.completed)
	assert.Empty(t, f.gateway.thrown)
	require.Len(t, f.gateway.failed, 1)

	req := f.gateway.failed[0]
	assert.Equal(t, int32(3), req.Retries)
	assert.Equal(t, "[HALTED] worker shutting down", req.ErrorMessage)

	vars := decodeVariables(t, req.Variables)
	assert.Equal(t, StatusHalted, vars["status"])
	assert.Equal(t, "jane@company.com", vars["username"])
	assert.Equal(t, "worker shutting down", vars["reason"])
	_, err := time.Parse(time.RFC3339, vars["halted_at"].(string))
	assert.NoError(t, err)

	assert.Equal(t, 0, f.org.requestCount())

	require.Len(t, f.auditor.entries, 1)
	entry := f.auditor.entries[0]
	assert.Equal(t, StatusHalted, entry.Status)
	assert.Equal(t, "jane@company.com", entry.Username)
	assert.Equal(t, "worker shutting down", entry.Reason)
	assert.NotEmpty(t, entry.ID)
}

func TestHandle_HaltedOnTimeout(t *testing.T) {
	f := newHandlerFixture(t, func(cfg *Config) { cfg.Timeout = 20 * time.Millisecond })
	f.org.userIDs = []string{"u1"}

	job := newJob(t, map[string]interface{}{"delay": 5})
	require.NoError(t, f.handler.Handle(f.client, job))

	require.Len(t, f.gateway.failed, 1)
	req := f.gateway.failed[0]
	assert.Equal(t, int32(2), req.Retries)
	assert.Equal(t, "[HALTED] job timeout exceeded", req.ErrorMessage)

	vars := decodeVariables(t, req.Variables)
	assert.Equal(t, StatusHalted, vars["status"])
	assert.Equal(t, UnknownUsername, vars["username"])
	assert.Equal(t, "job timeout exceeded", vars["reason"])

	require.Len(t, f.auditor.entries, 1)
	assert.Equal(t, StatusHalted, f.auditor.entries[0].Status)
	assert.Equal(t, UnknownUsername, f.auditor.entries[0].Username)
}

func TestHandle_DelayIsCappedAtMaxDelay(t *testing.T) {
	f := newHandlerFixture(t, func(cfg *Config) { cfg.MaxDelay = 10 * time.Millisecond })
	f.org.userIDs = []string{"u1"}

	job := newJob(t, map[string]interface{}{"username": "jane@company.com", "delay": "1h"})

	start := time.Now()
	require.NoError(t, f.handler.Handle(f.client, job))
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, f.gateway.completed, 1)
}

func TestNewHandler_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 0

	_, err := NewHandler(HandlerOptions{CustomConfig: cfg, Logger: logger.NewNoOpLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ConfigKey)
}

func TestRegister(t *testing.T) {
	t.Run("disabled worker is skipped", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Enabled = false
		h, err := NewHandler(HandlerOptions{CustomConfig: cfg, Logger: logger.NewNoOpLogger()})
		require.NoError(t, err)

		assert.NoError(t, h.Register())
		assert.False(t, h.IsEnabled())
	})

	t.Run("enabled worker needs a client", func(t *testing.T) {
		h, err := NewHandler(HandlerOptions{CustomConfig: DefaultConfig(), Logger: logger.NewNoOpLogger()})
		require.NoError(t, err)

		assert.Error(t, h.Register())
		assert.Error(t, h.HealthCheck(context.Background()))
		assert.Equal(t, TaskType, h.GetTaskType())
	})
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	appCfg := &config.Config{
		Salesforce: config.SalesforceConfig{
			BaseURL:    "https://acme.my.salesforce.com",
			APIVersion: "v60.0",
			Timeout:    15000,
		},
		Audit: config.AuditConfig{
			Enabled:      true,
			TTL:          48 * time.Hour,
			HistoryLimit: 10,
		},
		Workers: map[string]config.WorkerConfig{
			ConfigKey: {
				Enabled:            true,
				MaxJobsActive:      2,
				Timeout:            45000,
				MaxDelay:           120000,
				RateLimitBackoff:   30000,
				ServerErrorBackoff: 5000,
			},
		},
	}

	cfg := createConfigFromAppConfig(appCfg, nil, nil)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2, cfg.MaxJobsActive)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.MaxDelay)
	assert.Equal(t, 30*time.Second, cfg.RateLimitBackoff)
	assert.Equal(t, 5*time.Second, cfg.ServerErrorBackoff)
	assert.Equal(t, "https://acme.my.salesforce.com", cfg.BaseURL)
	assert.Equal(t, "v60.0", cfg.APIVersion)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.AuditEnabled)
	assert.Equal(t, 48*time.Hour, cfg.AuditTTL)
	assert.Equal(t, 10, cfg.AuditHistoryLimit)
	require.NoError(t, cfg.Validate())

	reg := &registry.ActivityRegistry{Activities: []registry.Activity{
		{ID: "revoke-sessions", TaskType: TaskType, Timeout: "90s"},
	}}
	assert.Equal(t, 90*time.Second, createConfigFromAppConfig(appCfg, nil, reg).Timeout)

	custom := DefaultConfig()
	custom.MaxJobsActive = 9
	assert.Same(t, custom, createConfigFromAppConfig(appCfg, custom, reg))

	defaults := createConfigFromAppConfig(nil, nil, nil)
	assert.Equal(t, DefaultConfig(), defaults)
}

func TestCredentialsFromAppConfig(t *testing.T) {
	appCfg := &config.Config{Salesforce: config.SalesforceConfig{Auth: config.SalesforceAuthConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     "https://login.example.com/services/oauth2/token",
	}}}

	creds := credentialsFromAppConfig(appCfg)
	assert.Equal(t, salesforce.AuthClientCredentials, creds.ResolveMethod())
	assert.Equal(t, "https://login.example.com/services/oauth2/token", creds.TokenURL)
}

func TestExtractErrorCode(t *testing.T) {
	assert.Equal(t, "UNKNOWN_ERROR", extractErrorCode(assert.AnError))
	assert.Equal(t, "USER_NOT_FOUND", extractErrorCode(errors.NewUserNotFoundError("ghost@company.com")))
}
