package revokesessions

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"salesforce-workers/internal/common/errors"
	"salesforce-workers/internal/common/logger"
	"salesforce-workers/internal/common/metrics"
	"salesforce-workers/internal/common/salesforce"
	"salesforce-workers/internal/models"
)

const authSessionObject = "AuthSession"

// HaltError is returned when the job context is cancelled mid-run. Sessions
// already revoked stay revoked.
type HaltError struct {
	Output  *HaltOutput
	Revoked int
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("invocation halted: %s", e.Output.Reason)
}

type Service struct {
	logger        logger.Logger
	config        *Config
	authenticator salesforce.Authenticator
	auditor       Auditor
	httpClient    *http.Client
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	auditor := deps.Auditor
	if auditor == nil {
		auditor = NoopAuditor{}
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.RequestTimeout}
	}
	return &Service{
		logger:        deps.Logger,
		config:        config,
		authenticator: deps.Authenticator,
		auditor:       auditor,
		httpClient:    httpClient,
	}
}

// Execute resolves the user, lists their non-current sessions and revokes them
// one at a time in listed order.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, errors.NewInputRequiredError("username")
	}

	ec, err := s.ResolveExecutionContext(ctx, input)
	if err != nil {
		return nil, s.haltOr(ctx, username, err)
	}

	client := salesforce.NewClient(s.httpClient, ec.BaseURL, ec.APIVersion, ec.Authorization)

	userID, err := s.resolveUser(ctx, client, username)
	if err != nil {
		return nil, s.haltOr(ctx, username, err)
	}

	sessionIDs, err := s.listSessions(ctx, client, userID)
	if err != nil {
		return nil, s.haltOr(ctx, username, err)
	}

	revoked := 0
	if len(sessionIDs) > 0 {
		revoked, err = s.revokeSessions(ctx, client, username, sessionIDs)
		if err != nil {
			var haltErr *HaltError
			if stderrors.As(err, &haltErr) {
				s.audit(ctx, AuditEntry{
					Status:          StatusHalted,
					Username:        username,
					UserID:          userID,
					SessionsFound:   len(sessionIDs),
					SessionsRevoked: revoked,
					Reason:          haltErr.Output.Reason,
					BaseURL:         ec.BaseURL,
				})
			}
			return nil, err
		}
	}

	output := &Output{
		Status:          StatusSuccess,
		Username:        username,
		UserID:          userID,
		SessionsRevoked: revoked,
		ProcessedAt:     time.Now().UTC(),
		Address:         ec.BaseURL,
	}

	s.logger.Info("Salesforce sessions revoked", map[string]interface{}{
		"username":        username,
		"userId":          userID,
		"sessionsFound":   len(sessionIDs),
		"sessionsRevoked": revoked,
	})

	s.audit(ctx, AuditEntry{
		Status:          StatusSuccess,
		Username:        username,
		UserID:          userID,
		SessionsFound:   len(sessionIDs),
		SessionsRevoked: revoked,
		BaseURL:         ec.BaseURL,
		RecordedAt:      output.ProcessedAt,
	})

	return output, nil
}

// ResolveExecutionContext picks the base URL and API version and obtains the
// Authorization header. No Salesforce data call is made.
func (s *Service) ResolveExecutionContext(ctx context.Context, input *Input) (*ExecutionContext, error) {
	if s.authenticator == nil {
		return nil, errors.NewConfigurationError(salesforce.ErrNoAuthMethod.Error())
	}

	// Without an address only OAuth can still supply one, through the token's
	// instance_url, so the token request is the one call allowed before the
	// missing base URL is reported.
	baseURL := firstNonEmpty(input.Address, s.config.BaseURL)
	if baseURL == "" && !tokenCarriesInstanceURL(s.authenticator.Method()) {
		return nil, errors.NewConfigurationError("salesforce base URL not configured")
	}

	auth, err := s.authenticator.Authorize(ctx)
	if err != nil {
		return nil, mapAuthError(err)
	}

	if baseURL == "" {
		baseURL = auth.InstanceURL
	}
	if baseURL == "" {
		return nil, errors.NewConfigurationError("salesforce base URL not configured and token response carried no instance_url")
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, errors.NewConfigurationError(fmt.Sprintf("invalid salesforce base URL %q: %v", baseURL, err))
	}

	return &ExecutionContext{
		BaseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIVersion:    salesforce.NormalizeAPIVersion(firstNonEmpty(input.APIVersion, s.config.APIVersion)),
		Authorization: auth.Header,
	}, nil
}

func tokenCarriesInstanceURL(method salesforce.AuthMethod) bool {
	return method == salesforce.AuthClientCredentials || method == salesforce.AuthAuthorizationCode
}

func mapAuthError(err error) error {
	if stderrors.Is(err, salesforce.ErrNoAuthMethod) || stderrors.Is(err, salesforce.ErrMissingCredential) {
		return errors.NewConfigurationError(err.Error())
	}

	var tokenErr *salesforce.TokenError
	if stderrors.As(err, &tokenErr) {
		if tokenErr.StatusCode == http.StatusTooManyRequests || tokenErr.StatusCode >= 500 {
			stdErr := errors.NewExternalServiceError("salesforce-oauth", err)
			stdErr.HTTPStatus = tokenErr.StatusCode
			return stdErr
		}
		stdErr := errors.NewAuthenticationError(err.Error())
		stdErr.HTTPStatus = tokenErr.StatusCode
		return stdErr
	}

	return errors.NewExternalServiceError("salesforce-oauth", err)
}

func (s *Service) resolveUser(ctx context.Context, client *salesforce.Client, username string) (string, error) {
	page, err := salesforce.Query[models.User](ctx, client, salesforce.UserByUsernameQuery(username))
	if err != nil {
		return "", upstreamError(err, errors.NewUserQueryFailedError)
	}
	if len(page.Records) == 0 || page.Records[0].ID == "" {
		return "", errors.NewUserNotFoundError(username)
	}

	s.logger.Debug("Resolved Salesforce user", map[string]interface{}{
		"username": username,
		"userId":   page.Records[0].ID,
	})
	return page.Records[0].ID, nil
}

func (s *Service) listSessions(ctx context.Context, client *salesforce.Client, userID string) ([]string, error) {
	sessions, err := salesforce.QueryAll[models.AuthSession](ctx, client, salesforce.NonCurrentSessionsQuery(userID))
	if err != nil {
		return nil, upstreamError(err, errors.NewSessionQueryFailedError)
	}

	ids := models.SessionIDs(sessions)
	s.logger.Debug("Listed non-current sessions", map[string]interface{}{
		"userId":   userID,
		"sessions": len(ids),
	})
	return ids, nil
}

func upstreamError(err error, build func(int, string) *errors.StandardError) error {
	var apiErr *salesforce.APIError
	if stderrors.As(err, &apiErr) {
		stdErr := build(apiErr.StatusCode, apiErr.Status)
		stdErr.RetryAfter = apiErr.RetryAfter
		if apiErr.Body != "" {
			stdErr.Details += ", body: " + truncate(apiErr.Body, 512)
		}
		return stdErr
	}
	return errors.NewExternalServiceError("salesforce", err)
}

// revokeSessions deletes each session in order. A 404 means an earlier delete
// already cascaded to it and is counted. Any other failure is logged once and
// skipped. Only cancellation stops the loop.
func (s *Service) revokeSessions(ctx context.Context, client *salesforce.Client, username string, sessionIDs []string) (int, error) {
	revoked := 0

	for _, sessionID := range sessionIDs {
		if ctx.Err() != nil {
			return revoked, s.halt(ctx, username, revoked)
		}

		err := client.DeleteRecord(ctx, authSessionObject, sessionID)
		if err == nil {
			revoked++
			continue
		}

		var apiErr *salesforce.APIError
		if stderrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			s.logger.Debug("Session already removed", map[string]interface{}{"sessionId": sessionID})
			revoked++
			continue
		}

		if ctx.Err() != nil {
			return revoked, s.halt(ctx, username, revoked)
		}

		fields := map[string]interface{}{
			"sessionId": sessionID,
			"username":  username,
			"error":     err.Error(),
		}
		reason := "transport"
		if apiErr != nil {
			fields["status"] = apiErr.StatusCode
			reason = fmt.Sprintf("status_%d", apiErr.StatusCode)
		}
		s.logger.Warn(fmt.Sprintf("Failed to revoke session %s", sessionID), fields)
		metrics.SessionRevocationFailures.WithLabelValues(TaskType, reason).Inc()
	}

	metrics.SessionsRevoked.WithLabelValues(TaskType).Add(float64(revoked))
	return revoked, nil
}

// Halt builds the acknowledgment for a cancelled invocation. It makes no calls.
func Halt(username, reason string) *HaltOutput {
	username = strings.TrimSpace(username)
	if username == "" {
		username = UnknownUsername
	}
	return &HaltOutput{
		Status:   StatusHalted,
		Username: username,
		Reason:   reason,
		HaltedAt: time.Now().UTC(),
	}
}

// HaltReason describes why ctx ended.
func HaltReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil {
		return cause.Error()
	}
	return "halted"
}

func (s *Service) halt(ctx context.Context, username string, revoked int) *HaltError {
	if revoked > 0 {
		metrics.SessionsRevoked.WithLabelValues(TaskType).Add(float64(revoked))
	}
	return &HaltError{Output: Halt(username, HaltReason(ctx)), Revoked: revoked}
}

// HaltPending records the halt of an invocation cancelled before Execute ran,
// such as during its start delay.
func (s *Service) HaltPending(ctx context.Context, username string) *HaltError {
	haltErr := s.halt(ctx, username, 0)
	s.audit(ctx, AuditEntry{
		Status:   StatusHalted,
		Username: haltErr.Output.Username,
		Reason:   haltErr.Output.Reason,
	})
	return haltErr
}

// haltOr converts err into a halt when it was caused by cancellation.
func (s *Service) haltOr(ctx context.Context, username string, err error) error {
	if ctx.Err() == nil {
		return err
	}
	return s.HaltPending(ctx, username)
}

func (s *Service) audit(ctx context.Context, entry AuditEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("Failed to record revocation audit entry", map[string]interface{}{
			"username": entry.Username,
			"status":   entry.Status,
			"error":    err.Error(),
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
