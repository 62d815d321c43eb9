// Package scheduler polls persistence for due sequence steps and publishes
// dispatch events for workers to execute.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cadencehq/cadence/pkg/eventbus"
	"github.com/cadencehq/cadence/pkg/events"
	"github.com/cadencehq/cadence/pkg/persistence"
)

const (
	DefaultPollInterval    = 15 * time.Second
	DefaultRedispatchAfter = 5 * time.Minute

	// DefaultRecoverySchedule runs a catch-up sweep hourly in case the
	// ticker loop stalls or the process sat idle across a deploy.
	DefaultRecoverySchedule = "0 * * * *"
)

// Dispatcher is the scheduling substrate. It owns no timers per step;
// persistence is the source of truth and the dispatcher only asks "what is
// due now". Steps that became due while nothing was running are picked up
// by the first sweep after start, so past-due steps always fire.
type Dispatcher struct {
	logger          *slog.Logger
	repo            persistence.SequenceRepository
	publisher       eventbus.EventPublisher
	pollInterval    time.Duration
	redispatchAfter time.Duration
	recoveryCron    *cron.Cron
	ticker          *time.Ticker
	done            chan bool
	started         bool
	mu              sync.Mutex
}

type Config struct {
	PollInterval     time.Duration
	RedispatchAfter  time.Duration
	RecoverySchedule string
}

func NewDispatcher(logger *slog.Logger, repo persistence.SequenceRepository, publisher eventbus.EventPublisher, cfg Config) (*Dispatcher, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.RedispatchAfter <= 0 {
		cfg.RedispatchAfter = DefaultRedispatchAfter
	}

	if cfg.RecoverySchedule == "" {
		cfg.RecoverySchedule = DefaultRecoverySchedule
	}

	d := &Dispatcher{
		logger:          logger.With("module", "scheduler"),
		repo:            repo,
		publisher:       publisher,
		pollInterval:    cfg.PollInterval,
		redispatchAfter: cfg.RedispatchAfter,
		recoveryCron:    cron.New(),
	}

	_, err := d.recoveryCron.AddFunc(cfg.RecoverySchedule, func() {
		count, err := d.Sweep(context.Background())
		if err != nil {
			d.logger.Error("Recovery sweep failed", "error", err)

			return
		}

		if count > 0 {
			d.logger.Info("Recovery sweep dispatched steps", "count", count)
		}
	})
	if err != nil {
		return nil, err
	}

	return d, nil
}

// Start runs an immediate sweep and then polls on the configured interval.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}

	d.logger.Info("Starting step dispatcher",
		"poll_interval", d.pollInterval,
		"redispatch_after", d.redispatchAfter)

	if count, err := d.Sweep(ctx); err != nil {
		d.logger.Error("Startup sweep failed", "error", err)
	} else if count > 0 {
		d.logger.Info("Startup sweep dispatched overdue steps", "count", count)
	}

	d.ticker = time.NewTicker(d.pollInterval)
	d.done = make(chan bool)
	d.started = true

	go d.poll(ctx)
	d.recoveryCron.Start()

	return nil
}

// Stop shuts the dispatcher down. In-flight publications complete.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	d.logger.Info("Stopping step dispatcher")

	d.ticker.Stop()

	// Closing rather than sending: the poll goroutine may be mid-sweep and
	// not selecting, and a dropped signal would park it on the stopped
	// ticker forever.
	close(d.done)

	cronCtx := d.recoveryCron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	d.started = false

	return nil
}

func (d *Dispatcher) poll(ctx context.Context) {
	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		case <-d.ticker.C:
			if _, err := d.Sweep(ctx); err != nil {
				d.logger.Error("Dispatch sweep failed", "error", err)
			}
		}
	}
}

// Sweep publishes a due event for every pending step whose time has come
// and that is not inside the redispatch window. Returns how many steps were
// dispatched.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	due, err := d.repo.DuePendingSteps(ctx, now, d.redispatchAfter)
	if err != nil {
		return 0, err
	}

	dispatched := 0

	for _, ref := range due {
		event := events.StepDue{
			BaseEvent:   events.NewBaseEvent(events.StepDueEvent, ref.SequenceID),
			StepNumber:  ref.StepNumber,
			ScheduledAt: ref.ScheduledAt,
		}

		if err := d.publisher.Publish(ctx, ref.SequenceID, event); err != nil {
			d.logger.Error("Failed to publish step due event",
				"sequence_id", ref.SequenceID,
				"step_number", ref.StepNumber,
				"error", err)

			continue
		}

		// Best effort: a lost dispatch mark only means an early
		// republication that the executor deduplicates.
		if err := d.repo.MarkStepDispatched(ctx, ref.SequenceID, ref.StepNumber, now); err != nil {
			d.logger.Warn("Failed to mark step dispatched",
				"sequence_id", ref.SequenceID,
				"step_number", ref.StepNumber,
				"error", err)
		}

		d.logger.Info("Dispatched due step",
			"sequence_id", ref.SequenceID,
			"step_number", ref.StepNumber,
			"scheduled_at", ref.ScheduledAt)

		dispatched++
	}

	return dispatched, nil
}
