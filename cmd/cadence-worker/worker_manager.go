package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cadencehq/cadence/pkg/eventbus"
	"github.com/cadencehq/cadence/pkg/events"
	"github.com/cadencehq/cadence/pkg/executor"
)

// WorkerManager consumes step due events and hands each one to the executor.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	eventBus eventbus.EventBus
	executor *executor.Executor
}

func NewWorkerManager(id string, eventBus eventbus.EventBus, exec *executor.Executor, logger *slog.Logger) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "cadence-worker", "worker_id", id),
		eventBus: eventBus,
		executor: exec,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.StepDueEvent, w.handleStepDue)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker...")
	case <-ctx.Done():
	}

	return nil
}

func (w *WorkerManager) handleStepDue(ctx context.Context, event any) error {
	dueEvent, ok := event.(*events.StepDue)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for StepDue")

		return nil
	}

	logger := w.logger.With(
		"sequence_id", dueEvent.SequenceID,
		"step_number", dueEvent.StepNumber,
		"event_id", dueEvent.ID,
	)
	logger.InfoContext(ctx, "Processing step due event")

	err := w.executor.Execute(ctx, dueEvent.SequenceID, dueEvent.StepNumber)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to execute step", "error", err)

		return err
	}

	return nil
}
