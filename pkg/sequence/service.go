// Package sequence turns trigger events into persisted delivery sequences.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cadencehq/cadence/pkg/campaign"
	"github.com/cadencehq/cadence/pkg/eventbus"
	"github.com/cadencehq/cadence/pkg/events"
	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/otelhelper"
	"github.com/cadencehq/cadence/pkg/segment"
)

var (
	ErrMissingRecipientID = errors.New("trigger event requires a recipient_id")
	ErrMissingCampaignID  = errors.New("trigger event requires a campaign_id")
)

// Service materializes sequences from trigger events. Creation is
// idempotent per (recipient, campaign): replays and concurrent duplicates
// resolve to the already existing sequence.
type Service struct {
	logger    *slog.Logger
	registry  *campaign.Registry
	repo      persistenceRepository
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
}

type persistenceRepository interface {
	CreateIfAbsent(ctx context.Context, sequence *models.Sequence) (*models.Sequence, bool, error)
}

func NewService(logger *slog.Logger, registry *campaign.Registry, repo persistenceRepository, publisher eventbus.EventPublisher) *Service {
	return &Service{
		logger:    logger.With("module", "sequence"),
		registry:  registry,
		repo:      repo,
		publisher: publisher,
		tracer:    otel.Tracer("cadence/sequence"),
	}
}

// ProcessTrigger classifies the trigger, derives the step schedule, and
// persists the sequence. The returned bool reports whether a new sequence
// was created; false means an existing live sequence absorbed the trigger.
func (s *Service) ProcessTrigger(ctx context.Context, trigger models.TriggerEvent) (*models.Sequence, bool, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "sequence.process_trigger",
		attribute.String(otelhelper.RecipientIDKey, trigger.RecipientID),
		attribute.String(otelhelper.CampaignIDKey, trigger.CampaignID),
	)
	defer span.End()

	if trigger.RecipientID == "" {
		return nil, false, ErrMissingRecipientID
	}

	if trigger.CampaignID == "" {
		return nil, false, ErrMissingCampaignID
	}

	definition, err := s.registry.Definition(trigger.CampaignID)
	if err != nil {
		return nil, false, fmt.Errorf("resolve campaign %s: %w", trigger.CampaignID, err)
	}

	candidate := s.buildSequence(trigger, definition)

	sequence, created, err := s.repo.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, false, fmt.Errorf("persist sequence: %w", err)
	}

	if !created {
		s.logger.InfoContext(ctx, "Trigger absorbed by existing sequence",
			"sequence_id", sequence.ID,
			"recipient_id", trigger.RecipientID,
			"campaign_id", trigger.CampaignID)

		return sequence, false, nil
	}

	s.logger.InfoContext(ctx, "Sequence created",
		"sequence_id", sequence.ID,
		"recipient_id", sequence.RecipientID,
		"campaign_id", sequence.CampaignID,
		"segment", sequence.Segment,
		"steps", len(sequence.Steps))

	s.publishCreated(ctx, sequence)

	return sequence, true, nil
}

// buildSequence derives segment, anchor, and the full step schedule. The
// anchor falls back to creation time when the trigger carries none, and
// each step's scheduled time is anchor plus the definition's offset.
func (s *Service) buildSequence(trigger models.TriggerEvent, definition *campaign.Definition) *models.Sequence {
	now := time.Now().UTC()

	anchor := now
	if trigger.AnchorTime != nil {
		anchor = trigger.AnchorTime.UTC()
	}

	steps := make([]models.SequenceStep, 0, len(definition.Steps))
	for _, stepDef := range definition.Steps {
		steps = append(steps, models.SequenceStep{
			StepNumber:  stepDef.StepNumber,
			ScheduledAt: anchor.Add(stepDef.Offset),
		})
	}

	return &models.Sequence{
		ID:          uuid.New().String(),
		RecipientID: trigger.RecipientID,
		CampaignID:  trigger.CampaignID,
		Segment:     segment.Classify(trigger.SignalCounts),
		AnchorTime:  anchor,
		Steps:       steps,
		Attributes:  trigger.Attributes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// publishCreated notifies downstream consumers after the sequence is
// durable. A publish failure does not undo creation; the scheduler works
// from persistence, so nothing is lost beyond the notification.
func (s *Service) publishCreated(ctx context.Context, sequence *models.Sequence) {
	if s.publisher == nil {
		return
	}

	event := events.SequenceCreated{
		BaseEvent:   events.NewBaseEvent(events.SequenceCreatedEvent, sequence.ID),
		RecipientID: sequence.RecipientID,
		CampaignID:  sequence.CampaignID,
		Segment:     sequence.Segment,
		AnchorTime:  sequence.AnchorTime,
		StepCount:   len(sequence.Steps),
	}

	if err := s.publisher.Publish(ctx, sequence.ID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sequence created event",
			"sequence_id", sequence.ID,
			"error", err)
	}
}
