package revokesessions

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"salesforce-workers/internal/common/camunda"
	"salesforce-workers/internal/common/config"
	"salesforce-workers/internal/common/errors"
	"salesforce-workers/internal/common/logger"
	"salesforce-workers/internal/common/metrics"
	"salesforce-workers/internal/common/observability"
	"salesforce-workers/internal/common/salesforce"
	"salesforce-workers/internal/common/validation"
	"salesforce-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	TaskType = "salesforce.sessions.revoke"

	// ConfigKey is the entry under workers: in the application config.
	ConfigKey = "revoke-sessions"

	commandTimeout = 10 * time.Second
)

var (
	ErrJobTimeout     = stderrors.New("job timeout exceeded")
	ErrWorkerShutdown = stderrors.New("worker shutting down")
)

type Handler struct {
	config       *Config
	logger       logger.Logger
	camunda      *camunda.Client
	service      *Service
	errorHandler *errors.ErrorHandler
	obs          *observability.Observability
	worker       *camunda.CamundaWorker

	rootCtx context.Context
	stop    context.CancelCauseFunc
}

type HandlerOptions struct {
	AppConfig     *config.Config
	Camunda       *camunda.Client
	CustomConfig  *Config
	Logger        logger.Logger
	Authenticator salesforce.Authenticator
	Auditor       Auditor
	Observability *observability.Observability
	HTTPClient    *http.Client
	Registry      *registry.ActivityRegistry
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig, opts.Registry)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", ConfigKey, err)
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: workerConfig.RequestTimeout}
	}

	authenticator := opts.Authenticator
	if authenticator == nil && opts.AppConfig != nil {
		authenticator = salesforce.NewAuthenticator(credentialsFromAppConfig(opts.AppConfig), httpClient)
	}

	rootCtx, stop := context.WithCancelCause(context.Background())

	handler := &Handler{
		config:  workerConfig,
		logger:  loggerInstance,
		camunda: opts.Camunda,
		errorHandler: errors.NewErrorHandler(loggerInstance, errors.RetryPolicy{
			RateLimitBackoff:   workerConfig.RateLimitBackoff,
			ServerErrorBackoff: workerConfig.ServerErrorBackoff,
			DefaultBackoff:     workerConfig.RetryBackoff,
		}),
		obs:     opts.Observability,
		rootCtx: rootCtx,
		stop:    stop,
	}

	handler.service = NewService(ServiceDependencies{
		Logger:        loggerInstance,
		Authenticator: authenticator,
		Auditor:       opts.Auditor,
		HTTPClient:    httpClient,
	}, workerConfig)

	return handler, nil
}

// Handle runs one job and reports its outcome: complete on success, fail with
// backoff on a transient error, throw a BPMN error on a fatal one, and fail
// with the halted record when the job is cancelled.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeoutCause(h.rootCtx, h.config.Timeout, ErrJobTimeout)
	defer cancel()

	ctx, span := h.obs.StartSpan(ctx, TaskType,
		attribute.Int64("zeebe.job.key", job.GetKey()),
		attribute.Int64("zeebe.process_instance.key", job.GetProcessInstanceKey()),
	)
	defer span.End()

	log := h.logger.With(map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"worker":             TaskType,
	})
	log.Info("Processing Salesforce session revocation request", map[string]interface{}{
		"retries": job.GetRetries(),
	})

	status := "failed"
	defer func() {
		h.obs.RecordJobProcessed(ctx, status)
		h.obs.RecordJobDuration(ctx, time.Since(startTime), status)
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	}()

	input, err := h.parseInput(job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid input")
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, extractErrorCode(err)).Inc()
		h.reportError(ctx, client, job, err, log)
		return err
	}
	span.SetAttributes(attribute.String("salesforce.username", input.Username))

	if err := h.wait(ctx, input.Delay, log); err != nil {
		status = StatusHalted
		return h.failHalted(ctx, client, job, h.service.HaltPending(ctx, input.Username), log)
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		var haltErr *HaltError
		if stderrors.As(err, &haltErr) {
			status = StatusHalted
			return h.failHalted(ctx, client, job, haltErr, log)
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, extractErrorCode(err))
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, extractErrorCode(err)).Inc()
		h.reportError(ctx, client, job, err, log)
		return err
	}

	status = StatusSuccess
	h.obs.RecordSessionsRevoked(ctx, output.SessionsRevoked)
	if err := h.completeJob(ctx, client, job, output, log); err != nil {
		return err
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	return nil
}

// Execute runs the revocation for input without any job bookkeeping.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.service.Execute(ctx, input)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewValidationFailedError(fmt.Sprintf("failed to parse job variables: %v", err))
	}

	validationResult := validation.ValidateInput(variables, GetInputSchema())
	if !validationResult.Valid {
		return nil, errors.NewValidationFailedError(validation.FormatErrors(validationResult.Errors))
	}

	input := &Input{}
	if username, ok := variables["username"].(string); ok {
		input.Username = strings.TrimSpace(username)
	}
	if address, ok := variables["address"].(string); ok {
		input.Address = strings.TrimSpace(address)
	}
	if apiVersion, ok := variables["apiVersion"].(string); ok {
		input.APIVersion = strings.TrimSpace(apiVersion)
	}

	delay, err := ParseDelay(variables["delay"])
	if err != nil {
		return nil, errors.NewValidationFailedError(err.Error())
	}
	input.Delay = delay

	return input, nil
}

// wait sleeps for delay, capped at MaxDelay. It returns ctx's error if the job
// is cancelled first.
func (h *Handler) wait(ctx context.Context, delay time.Duration, log logger.Logger) error {
	if delay <= 0 {
		return nil
	}
	if h.config.MaxDelay > 0 && delay > h.config.MaxDelay {
		log.Warn("Requested delay exceeds max_delay, capping", map[string]interface{}{
			"requested": delay.String(),
			"maxDelay":  h.config.MaxDelay.String(),
		})
		delay = h.config.MaxDelay
	}

	log.Debug("Delaying session revocation", map[string]interface{}{"delay": delay.String()})

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) reportError(ctx context.Context, client worker.JobClient, job entities.Job, err error, log logger.Logger) {
	cmdCtx, cancel := commandContext(ctx)
	defer cancel()

	decision := h.errorHandler.HandleJobError(cmdCtx, client, job, err)
	log.Info("Reported job error", map[string]interface{}{
		"retry":        decision.Retry,
		"retryBackoff": decision.Backoff.String(),
		"reason":       decision.Reason,
	})
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output, log logger.Logger) error {
	variables := map[string]interface{}{
		"status":          output.Status,
		"username":        output.Username,
		"userId":          output.UserID,
		"sessionsRevoked": output.SessionsRevoked,
		"processed_at":    output.ProcessedAt.Format(time.RFC3339),
	}
	if output.Address != "" {
		variables["address"] = output.Address
	}

	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(variables)
	if err != nil {
		log.Error("Failed to create complete job command", map[string]interface{}{"error": err.Error()})
		return err
	}

	cmdCtx, cancel := commandContext(ctx)
	defer cancel()

	err = h.send(cmdCtx, "complete-job", func(ctx context.Context) (interface{}, error) {
		return request.Send(ctx)
	})
	if err != nil {
		log.Error("Failed to complete job", map[string]interface{}{"error": err.Error()})
		return err
	}

	log.Info("Successfully completed Salesforce session revocation", map[string]interface{}{
		"userId":          output.UserID,
		"sessionsRevoked": output.SessionsRevoked,
	})
	return nil
}

// failHalted fails the job with the halted record as variables. A shutdown
// leaves the retry count untouched so another worker picks the job up; a
// timeout consumes one retry so a job that always times out cannot loop.
func (h *Handler) failHalted(ctx context.Context, client worker.JobClient, job entities.Job, haltErr *HaltError, log logger.Logger) error {
	halted := haltErr.Output
	metrics.WorkerJobsHalted.WithLabelValues(TaskType).Inc()

	retries := job.GetRetries()
	if !stderrors.Is(context.Cause(ctx), ErrWorkerShutdown) && retries > 0 {
		retries--
	}

	log.Warn("Salesforce session revocation halted", map[string]interface{}{
		"username":        halted.Username,
		"reason":          halted.Reason,
		"sessionsRevoked": haltErr.Revoked,
		"retries":         retries,
	})

	variables := map[string]interface{}{
		"status":    halted.Status,
		"username":  halted.Username,
		"reason":    halted.Reason,
		"halted_at": halted.HaltedAt.Format(time.RFC3339),
	}

	failCmd := client.NewFailJobCommand().
		JobKey(job.GetKey()).
		Retries(retries).
		ErrorMessage(fmt.Sprintf("[%s] %s", strings.ToUpper(StatusHalted), halted.Reason))

	request, err := failCmd.VariablesFromMap(variables)
	if err != nil {
		return err
	}

	cmdCtx, cancel := commandContext(ctx)
	defer cancel()

	err = h.send(cmdCtx, "fail-job", func(ctx context.Context) (interface{}, error) {
		return request.Send(ctx)
	})
	if err != nil {
		log.Error("Failed to report halted job", map[string]interface{}{"error": err.Error()})
		return err
	}
	return nil
}

// send dispatches a broker command, retrying transient gateway errors when a
// managed client is available.
func (h *Handler) send(ctx context.Context, operation string, fn func(context.Context) (interface{}, error)) error {
	if h.camunda == nil {
		_, err := fn(ctx)
		return err
	}
	_, err := h.camunda.ExecuteWithRetry(ctx, fn, operation)
	return err
}

// commandContext detaches broker commands from job cancellation so that a
// halted or timed-out job can still be reported.
func commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
}

func (h *Handler) Register() error {
	if !h.config.Enabled {
		h.logger.Info("Worker is disabled, skipping registration", map[string]interface{}{
			"worker": TaskType,
		})
		return nil
	}
	if h.camunda == nil {
		return fmt.Errorf("cannot register %s without a camunda client", TaskType)
	}

	h.worker = camunda.NewWorker(h.camunda.GetClient(), camunda.WorkerOptions{
		TaskType:       TaskType,
		Name:           fmt.Sprintf("%s-worker", TaskType),
		MaxJobsActive:  h.config.MaxJobsActive,
		Timeout:        h.config.Timeout + commandTimeout,
		FetchVariables: InputVariables,
	}, h, h.logger)
	h.worker.Start()

	h.logger.Info("Salesforce session revocation worker registered with Camunda", map[string]interface{}{
		"taskType":      TaskType,
		"maxJobsActive": h.config.MaxJobsActive,
		"timeout":       h.config.Timeout.String(),
		"enabled":       h.config.Enabled,
	})

	return nil
}

// Close halts in-flight jobs and stops the subscription.
func (h *Handler) Close(ctx context.Context) {
	h.stop(ErrWorkerShutdown)
	if h.worker != nil {
		h.logger.Info("Shutting down worker gracefully", map[string]interface{}{
			"worker": TaskType,
		})
		h.worker.Stop(ctx)
		h.worker = nil
	}
}

func (h *Handler) HealthCheck(ctx context.Context) error {
	if h.camunda == nil {
		return fmt.Errorf("camunda client not configured")
	}
	if err := h.camunda.HealthCheck(ctx); err != nil {
		return fmt.Errorf("camunda health check failed: %w", err)
	}
	return nil
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}

func (h *Handler) GetConfig() *Config {
	return h.config
}

func extractErrorCode(err error) string {
	var stdErr *errors.StandardError
	if stderrors.As(err, &stdErr) {
		return string(stdErr.Code)
	}
	return "UNKNOWN_ERROR"
}

func credentialsFromAppConfig(appConfig *config.Config) salesforce.Credentials {
	auth := appConfig.Salesforce.Auth
	return salesforce.Credentials{
		Method:       salesforce.AuthMethod(auth.Method),
		AccessToken:  auth.AccessToken,
		Username:     auth.Username,
		Password:     auth.Password,
		ClientID:     auth.ClientID,
		ClientSecret: auth.ClientSecret,
		RefreshToken: auth.RefreshToken,
		TokenURL:     auth.TokenURL,
		Scopes:       auth.Scopes,
	}
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config, reg *registry.ActivityRegistry) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()

	if appConfig != nil {
		workerCfg := config.GetWorkerConfig(appConfig, ConfigKey)
		cfg.Enabled = workerCfg.Enabled
		if workerCfg.MaxJobsActive > 0 {
			cfg.MaxJobsActive = workerCfg.MaxJobsActive
		}
		if workerCfg.Timeout > 0 {
			cfg.Timeout = config.GetDuration(workerCfg.Timeout)
		}
		if workerCfg.MaxDelay > 0 {
			cfg.MaxDelay = config.GetDuration(workerCfg.MaxDelay)
		}
		if workerCfg.RateLimitBackoff > 0 {
			cfg.RateLimitBackoff = config.GetDuration(workerCfg.RateLimitBackoff)
		}
		if workerCfg.ServerErrorBackoff > 0 {
			cfg.ServerErrorBackoff = config.GetDuration(workerCfg.ServerErrorBackoff)
		}

		cfg.BaseURL = appConfig.Salesforce.BaseURL
		if appConfig.Salesforce.APIVersion != "" {
			cfg.APIVersion = appConfig.Salesforce.APIVersion
		}
		if appConfig.Salesforce.Timeout > 0 {
			cfg.RequestTimeout = config.GetDuration(appConfig.Salesforce.Timeout)
		}

		cfg.AuditEnabled = appConfig.Audit.Enabled
		if appConfig.Audit.TTL > 0 {
			cfg.AuditTTL = appConfig.Audit.TTL
		}
		if appConfig.Audit.HistoryLimit > 0 {
			cfg.AuditHistoryLimit = appConfig.Audit.HistoryLimit
		}
	}

	if timeout := reg.TimeoutFor(TaskType); timeout > 0 {
		cfg.Timeout = timeout
	}

	return cfg
}

var _ camunda.JobHandler = (*Handler)(nil)
