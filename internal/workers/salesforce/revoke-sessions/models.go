package revokesessions

import (
	"net/http"
	"time"

	"salesforce-workers/internal/common/logger"
	"salesforce-workers/internal/common/salesforce"
)

const (
	StatusSuccess = "success"
	StatusHalted  = "halted"

	// UnknownUsername stands in for a missing username in a halted record.
	UnknownUsername = "unknown"
)

type Input struct {
	Username   string        `json:"username"`
	Address    string        `json:"address,omitempty"`
	Delay      time.Duration `json:"delay,omitempty"`
	APIVersion string        `json:"apiVersion,omitempty"`
}

type Output struct {
	Status          string    `json:"status"`
	Username        string    `json:"username"`
	UserID          string    `json:"userId"`
	SessionsRevoked int       `json:"sessionsRevoked"`
	ProcessedAt     time.Time `json:"processed_at"`
	Address         string    `json:"address,omitempty"`
}

// HaltOutput acknowledges a cancelled invocation.
type HaltOutput struct {
	Status   string    `json:"status"`
	Username string    `json:"username"`
	Reason   string    `json:"reason"`
	HaltedAt time.Time `json:"halted_at"`
}

// ExecutionContext is resolved once per job before any Salesforce call.
type ExecutionContext struct {
	BaseURL       string
	APIVersion    string
	Authorization string
}

type ServiceDependencies struct {
	Logger        logger.Logger
	Authenticator salesforce.Authenticator
	Auditor       Auditor
	HTTPClient    *http.Client
}
