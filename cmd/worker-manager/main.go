// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"salesforce-workers/internal/common/camunda"
	"salesforce-workers/internal/common/config"
	"salesforce-workers/internal/common/database"
	"salesforce-workers/internal/common/logger"
	"salesforce-workers/internal/common/messaging"
	"salesforce-workers/internal/common/observability"
	revokesessions "salesforce-workers/internal/workers/salesforce/revoke-sessions"
	"salesforce-workers/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog, err := logger.Build(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		bootLog.Fatal("logger init failed", zap.Error(err))
	}
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("envFile", config.EnvFileLoaded),
	)

	var obsOpts []observability.Option
	if cfg.Metrics.TracingEndpoint != "" {
		obsOpts = append(obsOpts, observability.WithOTLPEndpoint(cfg.Metrics.TracingEndpoint, cfg.Metrics.TracingInsecure))
	}
	obs := observability.New(cfg.App.Name, obsOpts...)
	defer obs.Shutdown()

	// --- Init Zeebe Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: cfg.Camunda.Plaintext,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully", zap.String("gateway", cfg.Camunda.BrokerAddress))

	// --- Init Redis audit trail with retry ---
	var auditors revokesessions.MultiAuditor
	var redisClient *database.RedisClient
	if cfg.Audit.Enabled {
		err = retryWithBackoff(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var err error
			redisClient, err = database.Connect(ctx, cfg.Database.Redis)
			return err
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redisClient.Close()

		redisAuditor := revokesessions.NewRedisAuditor(redisClient.GetClient(), cfg.Audit.TTL, cfg.Audit.HistoryLimit).
			WithKeyPrefix(cfg.Audit.KeyPrefix)
		auditors = append(auditors, redisAuditor)
		zapLog.Info("Redis audit trail enabled", zap.Duration("ttl", cfg.Audit.TTL))
	}

	// --- Init NATS revocation events ---
	if cfg.Events.Enabled {
		natsConn, err := messaging.Connect(cfg.Events, cfg.App.Name)
		if err != nil {
			zapLog.Fatal("nats connection failed", zap.Error(err))
		}
		defer natsConn.Drain()

		auditors = append(auditors, revokesessions.NewEventAuditor(natsConn, cfg.Events.SubjectPrefix))
		zapLog.Info("Revocation events enabled", zap.String("subjectPrefix", cfg.Events.SubjectPrefix))
	}

	var auditor revokesessions.Auditor
	if len(auditors) > 0 {
		auditor = auditors
	}

	// --- Activity registry (optional timeout overrides) ---
	var reg *registry.ActivityRegistry
	if cfg.App.RegistryPath != "" {
		reg, err = registry.LoadRegistry(cfg.App.RegistryPath)
		if err != nil {
			zapLog.Warn("activity registry not loaded, using configured timeouts", zap.Error(err))
		}
	}

	handler, err := revokesessions.NewHandler(revokesessions.HandlerOptions{
		AppConfig:     cfg,
		Camunda:       camundaClient,
		Logger:        log,
		Auditor:       auditor,
		Observability: obs,
		Registry:      reg,
	})
	if err != nil {
		zapLog.Fatal("failed to create revoke-sessions handler", zap.Error(err))
	}
	if err := handler.Register(); err != nil {
		zapLog.Fatal("failed to register revoke-sessions worker", zap.Error(err))
	}

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := handler.HealthCheck(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
				return
			}
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	handler.Close(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
	}
	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
