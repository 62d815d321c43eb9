// Package events defines event types for sequence lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/cadencehq/cadence/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "cadence.sequences"          // Topic for sequence lifecycle events
const StepTopic = "cadence.sequence.steps" // Topic for step dispatch and outcome events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Sequence lifecycle events.
	SequenceCreatedEvent EventType = "sequence.created"

	// Step lifecycle events.
	StepDueEvent    EventType = "sequence.step.due"
	StepSentEvent   EventType = "sequence.step.sent"
	StepFailedEvent EventType = "sequence.step.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	SequenceID string         `json:"sequence_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent fills the envelope fields shared by every event.
func NewBaseEvent(eventType EventType, sequenceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		SequenceID: sequenceID,
	}
}

// SequenceCreated is published exactly once per materialized sequence; a
// duplicate trigger that resolves to an existing sequence publishes nothing.
type SequenceCreated struct {
	BaseEvent

	RecipientID string         `json:"recipient_id"`
	CampaignID  string         `json:"campaign_id"`
	Segment     models.Segment `json:"segment"`
	AnchorTime  time.Time      `json:"anchor_time"`
	StepCount   int            `json:"step_count"`
}

func (s SequenceCreated) GetType() EventType {
	return SequenceCreatedEvent
}

// StepDue tells a worker that one step's scheduled time has arrived. It may
// be delivered more than once per step; the executor deduplicates against
// the persisted step state.
type StepDue struct {
	BaseEvent

	StepNumber  int       `json:"step_number"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (s StepDue) GetType() EventType {
	return StepDueEvent
}

type StepSent struct {
	BaseEvent

	StepNumber        int       `json:"step_number"`
	SentAt            time.Time `json:"sent_at"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Attempts          int       `json:"attempts"`
}

func (s StepSent) GetType() EventType {
	return StepSentEvent
}

type StepFailed struct {
	BaseEvent

	StepNumber    int       `json:"step_number"`
	FailedAt      time.Time `json:"failed_at"`
	FailureReason string    `json:"failure_reason"`
	Attempts      int       `json:"attempts"`
}

func (s StepFailed) GetType() EventType {
	return StepFailedEvent
}
