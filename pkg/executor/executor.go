// Package executor performs the delivery attempt for one due sequence step.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cadencehq/cadence/pkg/delivery"
	"github.com/cadencehq/cadence/pkg/eventbus"
	"github.com/cadencehq/cadence/pkg/events"
	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/otelhelper"
	"github.com/cadencehq/cadence/pkg/persistence"
	"github.com/cadencehq/cadence/pkg/template"
)

const defaultMaxAttempts = 3

// Executor runs one step end to end: reload, resolve, render, send, record.
// Effectively-once behavior comes from two guards, not from one delivery:
// the terminal-state check on load absorbs duplicate due events, and the
// conditional sent write drops the loser of any execution race.
type Executor struct {
	logger      *slog.Logger
	repo        persistence.SequenceRepository
	resolver    *template.Resolver
	provider    delivery.Provider
	publisher   eventbus.EventPublisher
	workerID    string
	maxAttempts int
	backoffBase time.Duration
	tracer      trace.Tracer
}

func NewExecutor(logger *slog.Logger, repo persistence.SequenceRepository, resolver *template.Resolver, provider delivery.Provider, publisher eventbus.EventPublisher, workerID string) *Executor {
	return &Executor{
		logger:      logger.With("module", "executor", "worker_id", workerID),
		repo:        repo,
		resolver:    resolver,
		provider:    provider,
		publisher:   publisher,
		workerID:    workerID,
		maxAttempts: defaultMaxAttempts,
		backoffBase: time.Second,
		tracer:      otel.Tracer("cadence/executor"),
	}
}

// Execute processes one due event. It returns an error only for infra
// failures worth redelivering the event for; business outcomes, including
// terminal failure of the step, are recorded in persistence and return nil.
func (e *Executor) Execute(ctx context.Context, sequenceID string, stepNumber int) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "executor.execute_step",
		attribute.String(otelhelper.SequenceIDKey, sequenceID),
		attribute.Int(otelhelper.StepNumberKey, stepNumber),
		attribute.String(otelhelper.WorkerIDKey, e.workerID),
	)
	defer span.End()

	err := e.execute(ctx, sequenceID, stepNumber)
	if err != nil {
		otelhelper.SetError(span, err,
			attribute.String(otelhelper.SequenceIDKey, sequenceID),
			attribute.Int(otelhelper.StepNumberKey, stepNumber),
		)
	}

	return err
}

func (e *Executor) execute(ctx context.Context, sequenceID string, stepNumber int) error {
	logger := e.logger.With("sequence_id", sequenceID, "step_number", stepNumber)

	sequence, err := e.repo.SequenceByID(ctx, sequenceID)
	if err != nil {
		if persistence.IsSequenceNotFound(err) {
			logger.WarnContext(ctx, "Due event for unknown sequence, dropping")

			return nil
		}

		return fmt.Errorf("load sequence: %w", err)
	}

	if sequence.Archived() {
		logger.InfoContext(ctx, "Sequence archived, skipping step")

		return nil
	}

	step := sequence.Step(stepNumber)
	if step == nil {
		logger.WarnContext(ctx, "Due event for unknown step, dropping")

		return nil
	}

	// Duplicate due events land here and become no-ops.
	if step.Terminal() {
		logger.InfoContext(ctx, "Step already finished, skipping", "status", step.Status())

		return nil
	}

	key, content, err := e.resolver.Resolve(ctx, sequence.CampaignID, stepNumber, sequence.Segment)
	if err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			// Configuration gaps cannot heal by retrying the same step.
			return e.markFailed(ctx, logger, sequence, step, err.Error(), 0)
		}

		return fmt.Errorf("resolve template: %w", err)
	}

	subject, body := template.RenderTemplate(content, sequence.Attributes)
	message := delivery.Message{
		To:      recipientAddress(sequence),
		Subject: subject,
		Body:    body,
	}

	logger = logger.With("template", key, "segment", sequence.Segment)

	providerMessageID, attempts, sendErr := e.sendWithRetry(ctx, logger, sequence, step, message)
	if sendErr != nil {
		// A cancelled or timed-out context is not a delivery verdict. The
		// step stays pending and the redispatch window re-offers it, so an
		// interrupted worker never turns a retryable send into a terminal
		// failure.
		if errors.Is(sendErr, context.Canceled) || errors.Is(sendErr, context.DeadlineExceeded) {
			return fmt.Errorf("delivery interrupted: %w", sendErr)
		}

		return e.markFailed(ctx, logger, sequence, step, sendErr.Error(), attempts)
	}

	sentAt := time.Now().UTC()

	err = e.repo.MarkStepSent(ctx, sequence.ID, stepNumber, sentAt, providerMessageID)
	if err != nil {
		if persistence.IsStaleUpdate(err) {
			// A concurrent execution finished first. Our send stands with
			// the provider but the record keeps the winner's outcome.
			logger.WarnContext(ctx, "Concurrent execution won the step, dropping result")

			return nil
		}

		return fmt.Errorf("mark step sent: %w", err)
	}

	logger.InfoContext(ctx, "Step sent", "provider_message_id", providerMessageID)

	e.publish(ctx, events.StepSent{
		BaseEvent:         e.baseEvent(events.StepSentEvent, sequence.ID),
		StepNumber:        stepNumber,
		SentAt:            sentAt,
		ProviderMessageID: providerMessageID,
		Attempts:          step.Attempts + attempts,
	})

	return nil
}

// sendWithRetry attempts delivery up to maxAttempts times with doubling
// backoff. Permanent failures abort immediately; every failed attempt is
// recorded before the next one starts. The returned count is how many
// provider calls this run made, including a successful one.
func (e *Executor) sendWithRetry(ctx context.Context, logger *slog.Logger, sequence *models.Sequence, step *models.SequenceStep, message delivery.Message) (string, int, error) {
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		providerMessageID, err := e.provider.Send(ctx, message)
		if err == nil {
			return providerMessageID, attempt, nil
		}

		lastErr = err

		if recordErr := e.repo.RecordStepAttempt(ctx, sequence.ID, step.StepNumber, err.Error()); recordErr != nil {
			logger.WarnContext(ctx, "Failed to record step attempt", "error", recordErr)
		}

		if delivery.IsPermanent(err) {
			logger.WarnContext(ctx, "Permanent delivery failure", "attempt", attempt, "error", err)

			return "", attempt, err
		}

		logger.WarnContext(ctx, "Transient delivery failure", "attempt", attempt, "error", err)

		if attempt == e.maxAttempts {
			break
		}

		backoff := e.backoffBase << (attempt - 1)
		select {
		case <-ctx.Done():
			return "", attempt, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", e.maxAttempts, fmt.Errorf("delivery failed after %d attempts: %w", e.maxAttempts, lastErr)
}

func (e *Executor) markFailed(ctx context.Context, logger *slog.Logger, sequence *models.Sequence, step *models.SequenceStep, reason string, attempts int) error {
	failedAt := time.Now().UTC()

	err := e.repo.MarkStepFailed(ctx, sequence.ID, step.StepNumber, failedAt, reason)
	if err != nil {
		if persistence.IsStaleUpdate(err) {
			logger.WarnContext(ctx, "Concurrent execution won the step, dropping failure")

			return nil
		}

		return fmt.Errorf("mark step failed: %w", err)
	}

	logger.ErrorContext(ctx, "Step failed terminally", "reason", reason)

	e.publish(ctx, events.StepFailed{
		BaseEvent:     e.baseEvent(events.StepFailedEvent, sequence.ID),
		StepNumber:    step.StepNumber,
		FailedAt:      failedAt,
		FailureReason: reason,
		Attempts:      step.Attempts + attempts,
	})

	return nil
}

func (e *Executor) publish(ctx context.Context, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	var key string

	switch ev := event.(type) {
	case events.StepSent:
		key = ev.SequenceID
	case events.StepFailed:
		key = ev.SequenceID
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish step outcome event", "error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType, sequenceID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, sequenceID)
	base.WorkerID = e.workerID

	return base
}

// recipientAddress prefers an explicit email attribute; recipient ids in
// trigger payloads are frequently the address itself, so it is the fallback.
func recipientAddress(sequence *models.Sequence) string {
	if address, ok := sequence.Attributes["email"]; ok && address != "" {
		return address
	}

	return sequence.RecipientID
}
