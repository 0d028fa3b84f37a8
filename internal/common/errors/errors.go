// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Invocation / Salesforce errors
const (
	ErrCodeInputRequired        ErrorCode = "INPUT_REQUIRED"
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeConfigurationMissing ErrorCode = "CONFIGURATION_MISSING"
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"

	ErrCodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrCodeUserQueryFailed    ErrorCode = "USER_QUERY_FAILED"
	ErrCodeSessionQueryFailed ErrorCode = "SESSION_QUERY_FAILED"

	ErrCodeExternalService  ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout          ErrorCode = "TIMEOUT_ERROR"
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeBusinessRule     ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"httpStatus,omitempty"`
	RetryAfter time.Duration          `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewInputRequiredError creates a non-retryable error for a missing invocation parameter.
func NewInputRequiredError(field string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInputRequired,
		Message:   fmt.Sprintf("Missing required input: %s", field),
		Details:   fmt.Sprintf("field: %s", field),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a non-retryable input validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConfigurationError creates a non-retryable error for missing credentials or
// connection settings.
func NewConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigurationMissing,
		Message:   "Missing configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserNotFoundError creates a non-retryable error for a username with no matching User.
func NewUserNotFoundError(username string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUserNotFound,
		Message:   fmt.Sprintf("User not found: %s", username),
		Details:   fmt.Sprintf("username: %s", username),
		Retryable: false,
		Metadata:  map[string]interface{}{"username": username},
		Timestamp: time.Now().UTC(),
	}
}

// NewUserQueryFailedError creates an upstream error for the User lookup.
// Retryable only for rate limiting and gateway failures.
func NewUserQueryFailedError(status int, statusText string) *StandardError {
	return newUpstreamQueryError(ErrCodeUserQueryFailed, "User query failed", status, statusText)
}

// NewSessionQueryFailedError creates an upstream error for the AuthSession listing.
func NewSessionQueryFailedError(status int, statusText string) *StandardError {
	return newUpstreamQueryError(ErrCodeSessionQueryFailed, "Session query failed", status, statusText)
}

func newUpstreamQueryError(code ErrorCode, message string, status int, statusText string) *StandardError {
	return &StandardError{
		Code:       code,
		Message:    fmt.Sprintf("%s: %d %s", message, status, statusText),
		Details:    fmt.Sprintf("status: %d, statusText: %s", status, statusText),
		Retryable:  IsRetryableStatus(status),
		HTTPStatus: status,
		Metadata: map[string]interface{}{
			"httpStatus": status,
			"statusText": statusText,
		},
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBusinessRule,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceNotFound,
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthenticationFailed,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
// BPMN error codes are the internal codes verbatim.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if stdErr.HTTPStatus != 0 {
		vars["httpStatus"] = stdErr.HTTPStatus
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableStatus reports whether an upstream HTTP status is transient.
func IsRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsFatalErrorCode reports whether errors with this code must never be retried.
func IsFatalErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeInputRequired,
		ErrCodeValidationFailed,
		ErrCodeConfigurationMissing,
		ErrCodeAuthenticationFailed,
		ErrCodeUserNotFound:
		return true
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "INPUT") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "CONFIGURATION") || strings.Contains(codeStr, "AUTHENTICATION"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "USER"):
		return "SALESFORCE"
	case strings.Contains(codeStr, "EXTERNAL") || strings.Contains(codeStr, "TIMEOUT"):
		return "TRANSPORT"
	default:
		return "OTHER"
	}
}
