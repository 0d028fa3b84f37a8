package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	policy := RetryPolicy{
		RateLimitBackoff:   time.Minute,
		ServerErrorBackoff: 10 * time.Second,
		DefaultBackoff:     5 * time.Second,
	}

	tests := []struct {
		name        string
		err         error
		wantRetry   bool
		wantBackoff time.Duration
	}{
		{name: "user query 429", err: NewUserQueryFailedError(429, "Too Many Requests"), wantRetry: true, wantBackoff: time.Minute},
		{name: "session query 502", err: NewSessionQueryFailedError(502, "Bad Gateway"), wantRetry: true, wantBackoff: 10 * time.Second},
		{name: "user query 503", err: NewUserQueryFailedError(503, "Service Unavailable"), wantRetry: true, wantBackoff: 10 * time.Second},
		{name: "session query 504", err: NewSessionQueryFailedError(504, "Gateway Timeout"), wantRetry: true, wantBackoff: 10 * time.Second},
		{name: "user query 401", err: NewUserQueryFailedError(401, "Unauthorized"), wantRetry: false},
		{name: "session query 403", err: NewSessionQueryFailedError(403, "Forbidden"), wantRetry: false},
		{name: "user query 400", err: NewUserQueryFailedError(400, "Bad Request"), wantRetry: false},
		{name: "missing username", err: NewInputRequiredError("username"), wantRetry: false},
		{name: "missing configuration", err: NewConfigurationError("no authentication method configured"), wantRetry: false},
		{name: "user not found", err: NewUserNotFoundError("ghost@example.com"), wantRetry: false},
		{name: "authentication", err: NewAuthenticationError("invalid_grant"), wantRetry: false},
		{name: "external service", err: NewExternalServiceError("salesforce", fmt.Errorf("connection reset")), wantRetry: true, wantBackoff: 5 * time.Second},
		{name: "wrapped typed error", err: fmt.Errorf("resolve user: %w", NewUserQueryFailedError(503, "Service Unavailable")), wantRetry: true, wantBackoff: 10 * time.Second},
		{name: "plain 429 message", err: stderrors.New("request failed with status 429"), wantRetry: true, wantBackoff: time.Minute},
		{name: "plain 503 message", err: stderrors.New("upstream returned 503 Service Unavailable"), wantRetry: true, wantBackoff: 10 * time.Second},
		{name: "plain 401 message", err: stderrors.New("401 Unauthorized"), wantRetry: false},
		{name: "plain 403 message", err: stderrors.New("Forbidden"), wantRetry: false},
		{name: "plain missing username", err: stderrors.New("Missing required input: username"), wantRetry: false},
		{name: "plain missing configuration", err: stderrors.New("salesforce base url not configured"), wantRetry: false},
		{name: "unrecognized", err: stderrors.New("something odd happened"), wantRetry: true, wantBackoff: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := policy.Classify(tt.err)
			assert.Equal(t, tt.wantRetry, decision.Retry)
			if tt.wantRetry {
				assert.Equal(t, tt.wantBackoff, decision.Backoff)
			}
			assert.NotEmpty(t, decision.Reason)
		})
	}
}

func TestClassify_RetryAfterOverridesRateLimitBackoff(t *testing.T) {
	err := NewUserQueryFailedError(429, "Too Many Requests")
	err.RetryAfter = 7 * time.Second

	decision := DefaultRetryPolicy.Classify(err)

	assert.True(t, decision.Retry)
	assert.Equal(t, 7*time.Second, decision.Backoff)
}

func TestClassify_Nil(t *testing.T) {
	assert.False(t, DefaultRetryPolicy.Classify(nil).Retry)
}

func TestUpstreamQueryErrorMessage(t *testing.T) {
	err := NewUserQueryFailedError(500, "Internal Server Error")

	assert.Equal(t, ErrCodeUserQueryFailed, err.Code)
	assert.Equal(t, "User query failed: 500 Internal Server Error", err.Message)
	assert.Equal(t, 500, err.HTTPStatus)
	assert.False(t, err.Retryable)

	err = NewSessionQueryFailedError(503, "Service Unavailable")
	assert.Equal(t, "Session query failed: 503 Service Unavailable", err.Message)
	assert.True(t, err.Retryable)
}

func TestConvertToBPMNError(t *testing.T) {
	stdErr := NewUserNotFoundError("john.doe@company.com")

	bpmnErr := ConvertToBPMNError(stdErr)

	assert.Equal(t, "USER_NOT_FOUND", bpmnErr.Code)
	assert.Equal(t, "User not found: john.doe@company.com", bpmnErr.Message)
	assert.False(t, bpmnErr.Retryable)

	vars := bpmnErr.ToErrorVariables()
	assert.Equal(t, "USER_NOT_FOUND", vars["errorCode"])
	assert.Equal(t, "User not found: john.doe@company.com", vars["errorMessage"])
	assert.Equal(t, false, vars["retryable"])
	assert.Equal(t, "USER_NOT_FOUND", vars["originalErrorCode"])
	assert.NotContains(t, vars, "httpStatus")
}

func TestConvertToBPMNError_CarriesHTTPStatus(t *testing.T) {
	bpmnErr := ConvertToBPMNError(NewSessionQueryFailedError(403, "Forbidden"))

	assert.Equal(t, 403, bpmnErr.ToErrorVariables()["httpStatus"])
}

func TestNormalize(t *testing.T) {
	typed := NewConfigurationError("no base url")
	assert.Same(t, typed, Normalize(fmt.Errorf("wrapped: %w", typed)))

	plain := Normalize(stderrors.New("boom"))
	require.NotNil(t, plain)
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)
}

func TestGetErrorCategory(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeInputRequired, "VALIDATION"},
		{ErrCodeValidationFailed, "VALIDATION"},
		{ErrCodeConfigurationMissing, "CONFIGURATION"},
		{ErrCodeAuthenticationFailed, "CONFIGURATION"},
		{ErrCodeUserNotFound, "SALESFORCE"},
		{ErrCodeSessionQueryFailed, "SALESFORCE"},
		{ErrCodeExternalService, "TRANSPORT"},
		{ErrCodeInternal, "OTHER"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorCategory(tt.code))
		})
	}
}
