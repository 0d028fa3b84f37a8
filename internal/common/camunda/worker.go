// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"salesforce-workers/internal/common/logger"
)

// JobHandler reports the job outcome to the broker itself; a returned error is
// only logged.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

// WorkerOptions configures one job worker subscription.
type WorkerOptions struct {
	TaskType       string
	Name           string
	MaxJobsActive  int
	Concurrency    int
	Timeout        time.Duration
	FetchVariables []string
}

type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

func NewWorker(client zbc.Client, opts WorkerOptions, handler JobHandler, log logger.Logger) *CamundaWorker {
	builder := client.NewJobWorker().
		JobType(opts.TaskType).
		Handler(func(client worker.JobClient, job entities.Job) {
			if err := handler.Handle(client, job); err != nil {
				log.Error("Handler returned error", map[string]interface{}{
					"error":    err.Error(),
					"jobKey":   job.GetKey(),
					"taskType": opts.TaskType,
				})
			}
		})

	if opts.MaxJobsActive > 0 {
		builder = builder.MaxJobsActive(opts.MaxJobsActive)
	}
	if opts.Concurrency > 0 {
		builder = builder.Concurrency(opts.Concurrency)
	}
	if opts.Timeout > 0 {
		builder = builder.Timeout(opts.Timeout)
	}
	if opts.Name != "" {
		builder = builder.Name(opts.Name)
	}
	if len(opts.FetchVariables) > 0 {
		builder = builder.FetchVariables(opts.FetchVariables...)
	}

	return &CamundaWorker{
		worker:   builder.Open(),
		logger:   log,
		taskType: opts.TaskType,
	}
}

func (w *CamundaWorker) Start() {
	w.logger.Info("worker started", map[string]interface{}{"taskType": w.taskType})
}

// Stop closes the subscription and waits for in-flight jobs. The shared Zeebe
// client is left open.
func (w *CamundaWorker) Stop(ctx context.Context) {
	w.logger.Info("stopping worker", map[string]interface{}{"taskType": w.taskType})

	done := make(chan struct{})
	go func() {
		w.worker.Close()
		w.worker.AwaitClose()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("worker did not stop before deadline", map[string]interface{}{"taskType": w.taskType})
	}
}
