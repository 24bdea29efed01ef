package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/asr"
	"github.com/VishnuKaranth/Dubbing-Software/internal/config"
	"github.com/VishnuKaranth/Dubbing-Software/internal/database"
	"github.com/VishnuKaranth/Dubbing-Software/internal/ingest"
	"github.com/VishnuKaranth/Dubbing-Software/internal/media"
	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/queue"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"
	"github.com/VishnuKaranth/Dubbing-Software/internal/synth"
	"github.com/VishnuKaranth/Dubbing-Software/internal/terms"
	"github.com/VishnuKaranth/Dubbing-Software/internal/translate"
	"github.com/VishnuKaranth/Dubbing-Software/internal/worker/steps"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const exchangeType = "topic"

// Publisher describes the minimal publishing behaviour Worker needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
	Conn() *queue.Connection
}

// stepStage maps each queue step to the job stage it represents.
var stepStage = map[string]models.JobStage{
	steps.StepDownload:   models.StageDownloading,
	steps.StepSeparate:   models.StageSeparating,
	steps.StepTranscribe: models.StageTranscribing,
	steps.StepTranslate:  models.StageTranslating,
	steps.StepSynthesize: models.StageSynthesizing,
	steps.StepSync:       models.StageSyncing,
	steps.StepRemix:      models.StageRemixing,
}

// gpuSteps are the stages that hold a compute slot while running.
var gpuSteps = map[string]bool{
	steps.StepSeparate:   true,
	steps.StepTranscribe: true,
	steps.StepSynthesize: true,
}

// Worker consumes pipeline step messages and drives jobs forward.
type Worker struct {
	db        *database.DB
	storage   storage.ObjectStorage
	publisher Publisher
	config    *config.Config
	logger    *zap.Logger
	registry  *ProcessorRegistry
	gpuSlots  chan struct{}
}

// New creates a new worker and registers the default step processors.
func New(db *database.DB, store storage.ObjectStorage, publisher Publisher, dict *terms.Dictionary, cfg *config.Config, logger *zap.Logger) (*Worker, error) {
	translator, err := translate.NewTranslator(cfg.External.Translator, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build translator: %w", err)
	}

	slots := cfg.Pipeline.GPUSlots
	if slots < 1 {
		slots = 1
	}
	w := &Worker{
		db:        db,
		storage:   store,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		gpuSlots:  make(chan struct{}, slots),
	}

	deps := steps.Deps{
		DB:        db,
		Storage:   store,
		Publisher: publisher,
		Config:    cfg,
		Logger:    logger,

		Downloader:  ingest.NewDownloader(logger),
		Transcriber: asr.NewClient(cfg.External.Transcriber, logger),
		Translator:  translator,
		Synth:       synth.NewClient(cfg.External.Synthesizer, logger),
		Media:       media.NewEngine(cfg.Media, logger),
		Separator:   media.NewSeparator(cfg.Media, logger),
		Terms:       terms.NewCodec(dict, logger),
	}

	w.registry = NewProcessorRegistry()
	w.registry.Register(steps.NewDownloadProcessor(deps))
	w.registry.Register(steps.NewSeparateProcessor(deps))
	w.registry.Register(steps.NewTranscribeProcessor(deps))
	w.registry.Register(steps.NewTranslateProcessor(deps))
	w.registry.Register(steps.NewSynthesizeProcessor(deps))
	w.registry.Register(steps.NewSyncProcessor(deps))
	w.registry.Register(steps.NewRemixProcessor(deps))
	w.registry.Register(steps.NewCleanupProcessor(deps))

	return w, nil
}

// StartConsumer starts consuming messages for a specific registered step.
func (w *Worker) StartConsumer(ctx context.Context, step string) error {
	processor, ok := w.registry.Get(step)
	if !ok {
		return fmt.Errorf("no processor registered for step: %s", step)
	}

	conn := w.publisher.Conn()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		queue.ExchangeName,
		exchangeType,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	queueName := queue.RoutingKey(step)
	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, queueName, queue.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	// One message at a time per consumer.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	w.logger.Info("started consumer", zap.String("step", step), zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping consumer", zap.String("step", step))
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed")
			}

			if err := w.processMessage(ctx, processor, msg); err != nil {
				w.logger.Error("failed to process message",
					zap.String("step", step),
					zap.Error(err),
				)
				// Nack without requeue; retries are republished explicitly.
				_ = msg.Nack(false, false)
			} else {
				_ = msg.Ack(false)
			}
		}
	}
}

// StartAllConsumers starts consumers for all registered processors.
func (w *Worker) StartAllConsumers(ctx context.Context) {
	for _, step := range w.registry.Names() {
		go func(stepName string) {
			if err := w.StartConsumer(ctx, stepName); err != nil {
				w.logger.Error("consumer failed", zap.String("step", stepName), zap.Error(err))
			}
		}(step)
	}
}

func (w *Worker) processMessage(ctx context.Context, processor StepProcessor, msg amqp.Delivery) error {
	jobMsg, jobID, err := decodeJobMessage(msg.Body)
	if err != nil {
		return err
	}
	return w.runStepWithStatus(ctx, processor, jobID, jobMsg)
}

func decodeJobMessage(body []byte) (models.JobMessage, uuid.UUID, error) {
	var jobMsg models.JobMessage
	if err := json.Unmarshal(body, &jobMsg); err != nil {
		return models.JobMessage{}, uuid.Nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	jobID, err := uuid.Parse(jobMsg.JobID)
	if err != nil {
		return models.JobMessage{}, uuid.Nil, fmt.Errorf("invalid job_id: %w", err)
	}
	return jobMsg, jobID, nil
}

func (w *Worker) runStepWithStatus(ctx context.Context, processor StepProcessor, jobID uuid.UUID, jobMsg models.JobMessage) error {
	step := processor.Name()

	w.logger.Info("processing message",
		zap.String("step", step),
		zap.String("job_id", jobID.String()),
		zap.Int("attempt", jobMsg.Attempt),
		zap.String("trace_id", jobMsg.TraceID),
	)

	// Cancelled jobs short-circuit straight to cleanup.
	if step != steps.StepCleanup {
		cancelled, err := w.jobCancelled(ctx, jobID)
		if err != nil {
			return err
		}
		if cancelled {
			w.logger.Info("job cancelled, skipping to cleanup",
				zap.String("step", step),
				zap.String("job_id", jobID.String()),
			)
			return w.publishCleanup(ctx, jobID)
		}
	}

	// Idempotent re-entry: a step that already succeeded is not repeated.
	stepStatus, err := w.getStepStatus(ctx, jobID, step)
	if err == nil && stepStatus == string(models.JobStepStatusSucceeded) {
		w.logger.Info("step already succeeded, skipping",
			zap.String("step", step),
			zap.String("job_id", jobID.String()),
		)
		return nil
	}

	if err := w.enterStage(ctx, jobID, step); err != nil {
		return err
	}
	if err := w.updateStepStatus(ctx, jobID, step, jobMsg.Attempt, string(models.JobStepStatusRunning), nil); err != nil {
		return fmt.Errorf("failed to update step status: %w", err)
	}

	if gpuSteps[step] {
		select {
		case w.gpuSlots <- struct{}{}:
			defer func() { <-w.gpuSlots }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	stepCtx, cancel := w.withStepTimeout(ctx, step)
	defer cancel()

	startTime := time.Now()
	processErr := processor.Process(stepCtx, jobID, jobMsg)
	duration := time.Since(startTime)

	if processErr != nil {
		errMsg := processErr.Error()
		if err := w.updateStepStatus(ctx, jobID, step, jobMsg.Attempt, string(models.JobStepStatusFailed), &errMsg); err != nil {
			w.logger.Error("failed to update step status", zap.Error(err))
		}

		if jobMsg.Attempt < w.config.Pipeline.MaxStepRetries {
			return w.retryMessage(ctx, jobMsg, step)
		}

		// Retries exhausted: fail the job and tear down its scratch state.
		if err := w.updateJobStatus(ctx, jobID, models.JobStatusFailed, &errMsg); err != nil {
			w.logger.Error("failed to update job status", zap.Error(err))
		}
		if step != steps.StepCleanup {
			if err := w.publishCleanup(ctx, jobID); err != nil {
				w.logger.Error("failed to schedule cleanup", zap.Error(err))
			}
		}
		return fmt.Errorf("step failed after %d attempts: %w", jobMsg.Attempt, processErr)
	}

	metrics := map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
		"job_id":      jobID.String(),
		"step":        step,
		"trace_id":    jobMsg.TraceID,
	}
	metricsJSON, _ := json.Marshal(metrics)
	metricsStr := string(metricsJSON)
	if err := w.updateStepStatusWithMetrics(ctx, jobID, step, jobMsg.Attempt, string(models.JobStepStatusSucceeded), nil, &metricsStr); err != nil {
		return fmt.Errorf("failed to update step status: %w", err)
	}

	w.logger.Info("step completed",
		zap.String("step", step),
		zap.String("job_id", jobID.String()),
		zap.Duration("duration", duration),
	)
	return nil
}

// enterStage advances the job's stage and marks it running. Stages only move
// forward; a redelivered message for an earlier stage never rewinds the job.
func (w *Worker) enterStage(ctx context.Context, jobID uuid.UUID, step string) error {
	stage, ok := stepStage[step]
	if !ok {
		return nil
	}
	_, err := w.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', stage = $1, progress = $2, updated_at = $3
		WHERE id = $4 AND status IN ('pending', 'running')`,
		stage, stage.Progress(), time.Now(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to advance job stage: %w", err)
	}
	return nil
}

func (w *Worker) jobCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var status string
	if err := w.db.QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE id = $1`, jobID,
	).Scan(&status); err != nil {
		return false, fmt.Errorf("failed to load job status: %w", err)
	}
	return models.JobStatus(status) == models.JobStatusCancelled, nil
}

func (w *Worker) publishCleanup(ctx context.Context, jobID uuid.UUID) error {
	msg := models.NewJobMessage(jobID, steps.StepCleanup, nil)
	return w.publisher.Publish(ctx, queue.RoutingKey(steps.StepCleanup), msg)
}

// getStepStatus gets the status of a job step.
func (w *Worker) getStepStatus(ctx context.Context, jobID uuid.UUID, step string) (string, error) {
	query := `SELECT status FROM job_steps WHERE job_id = $1 AND step = $2 ORDER BY attempt DESC LIMIT 1`
	var status string
	err := w.db.QueryRowContext(ctx, query, jobID, step).Scan(&status)
	return status, err
}

// updateStepStatus updates the status of a job step.
func (w *Worker) updateStepStatus(ctx context.Context, jobID uuid.UUID, step string, attempt int, status string, errorMsg *string) error {
	return w.updateStepStatusWithMetrics(ctx, jobID, step, attempt, status, errorMsg, nil)
}

// updateStepStatusWithMetrics updates the status of a job step with metrics.
func (w *Worker) updateStepStatusWithMetrics(ctx context.Context, jobID uuid.UUID, step string, attempt int, status string, errorMsg *string, metricsJSON *string) error {
	now := time.Now()

	var exists bool
	checkQuery := `SELECT EXISTS(SELECT 1 FROM job_steps WHERE job_id = $1 AND step = $2 AND attempt = $3)`
	if err := w.db.QueryRowContext(ctx, checkQuery, jobID, step, attempt).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check step existence: %w", err)
	}

	if !exists {
		insertQuery := `
			INSERT INTO job_steps (job_id, step, status, attempt, started_at, error, metrics_json, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err := w.db.ExecContext(ctx, insertQuery,
			jobID, step, status, attempt, now, errorMsg, metricsJSON, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step: %w", err)
		}
		return nil
	}

	if status == string(models.JobStepStatusSucceeded) || status == string(models.JobStepStatusFailed) {
		updateQuery := `
			UPDATE job_steps
			SET status = $1, error = $2, ended_at = $3, metrics_json = $4, updated_at = $5
			WHERE job_id = $6 AND step = $7 AND attempt = $8
		`
		if _, err := w.db.ExecContext(ctx, updateQuery,
			status, errorMsg, now, metricsJSON, now, jobID, step, attempt,
		); err != nil {
			return fmt.Errorf("failed to update step: %w", err)
		}
		return nil
	}

	updateQuery := `
		UPDATE job_steps
		SET status = $1, error = $2, metrics_json = $3, updated_at = $4
		WHERE job_id = $5 AND step = $6 AND attempt = $7
	`
	if _, err := w.db.ExecContext(ctx, updateQuery,
		status, errorMsg, metricsJSON, now, jobID, step, attempt,
	); err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}
	return nil
}

// updateJobStatus updates the job status.
func (w *Worker) updateJobStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, errorMsg *string) error {
	query := `UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`
	_, err := w.db.ExecContext(ctx, query, status, errorMsg, time.Now(), jobID)
	return err
}

// retryMessage retries a message with exponential backoff.
func (w *Worker) retryMessage(ctx context.Context, msg models.JobMessage, step string) error {
	msg.Attempt++
	delay := time.Duration(1<<uint(msg.Attempt-1)) * time.Second

	w.logger.Info("retrying message",
		zap.String("step", step),
		zap.String("job_id", msg.JobID),
		zap.Int("attempt", msg.Attempt),
		zap.Duration("delay", delay),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	return w.publisher.Publish(ctx, queue.RoutingKey(step), msg)
}

func (w *Worker) stepTimeout(step string) time.Duration {
	t := w.config.Pipeline.StepTimeouts
	switch step {
	case steps.StepDownload:
		return t.Download
	case steps.StepSeparate:
		return t.Separate
	case steps.StepTranscribe:
		return t.Transcribe
	case steps.StepTranslate:
		return t.Translate
	case steps.StepSynthesize:
		return t.Synthesize
	case steps.StepSync:
		return t.Sync
	case steps.StepRemix:
		return t.Remix
	default:
		return 0
	}
}

func (w *Worker) withStepTimeout(ctx context.Context, step string) (context.Context, context.CancelFunc) {
	timeout := w.stepTimeout(step)
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
