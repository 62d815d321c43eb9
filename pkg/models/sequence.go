package models

import "time"

// StepStatus is the derived state of a single sequence step.
//
// State machine:
//
//	[pending] ---(fires, provider accepts)---> [sent]
//	[pending] ---(fires, permanent failure)--> [failed]
//	[pending] ---(fires, retries exhausted)--> [failed]
//
// sent and failed are terminal. A step never moves out of a terminal state.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusSent    StepStatus = "sent"
	StepStatusFailed  StepStatus = "failed"
)

// SequenceStep is one scheduled delivery unit within a sequence.
// ScheduledAt is computed once at sequence creation and never rewritten;
// only the outcome fields (SentAt, FailedAt, Attempts, LastError) mutate.
type SequenceStep struct {
	StepNumber int `json:"step_number"`

	// ScheduledAt is anchor_time + the step's definition offset. Write-once.
	ScheduledAt time.Time `json:"scheduled_at"`

	// SentAt is nil while pending and set exactly once on successful
	// delivery. The conditional write on this field is the only
	// synchronization primitive step execution relies on.
	SentAt *time.Time `json:"sent_at,omitempty"`

	// FailedAt marks a terminal failure (permanent provider error, retry
	// budget exhausted, or missing template configuration).
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`

	// Attempts counts provider calls made for this step, successful or not.
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`

	// DispatchedAt records when the dispatcher last published a due event
	// for this step, bounding republication on an at-least-once substrate.
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`

	// ProviderMessageID is the delivery provider's id for the accepted
	// message, recorded alongside SentAt.
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// Status derives the step's state from its outcome fields.
func (s *SequenceStep) Status() StepStatus {
	switch {
	case s.SentAt != nil:
		return StepStatusSent
	case s.FailedAt != nil:
		return StepStatusFailed
	default:
		return StepStatusPending
	}
}

// Terminal reports whether the step has reached a terminal state.
func (s *SequenceStep) Terminal() bool {
	return s.SentAt != nil || s.FailedAt != nil
}

// Sequence is the durable record of one recipient's progress through one
// campaign. It is the single source of truth for orchestration: workers and
// dispatchers re-read it rather than trusting anything held in memory.
//
// Invariants:
//   - at most one non-archived sequence exists per (recipient_id, campaign_id)
//   - Segment and every step's ScheduledAt are write-once
//   - a step's SentAt moves from nil to a timestamp exactly once, never back
type Sequence struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	CampaignID  string `json:"campaign_id"`

	Segment Segment `json:"segment"`

	// AnchorTime is the instant all step offsets are measured from. If the
	// trigger omitted one, the idempotency guard records creation time here.
	AnchorTime time.Time `json:"anchor_time"`

	Steps []SequenceStep `json:"steps"`

	// Attributes is the immutable copy of the trigger's attribute map,
	// consulted at send time for template substitution.
	Attributes map[string]string `json:"attributes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ArchivedAt is set by external archival tooling only. The engine never
	// archives or deletes sequences itself; it just skips archived ones.
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Step returns the step with the given number, or nil when absent.
func (s *Sequence) Step(stepNumber int) *SequenceStep {
	for i := range s.Steps {
		if s.Steps[i].StepNumber == stepNumber {
			return &s.Steps[i]
		}
	}

	return nil
}

// PendingSteps returns the steps that have not reached a terminal state.
func (s *Sequence) PendingSteps() []SequenceStep {
	var pending []SequenceStep

	for _, step := range s.Steps {
		if !step.Terminal() {
			pending = append(pending, step)
		}
	}

	return pending
}

// Archived reports whether external tooling has archived this sequence.
func (s *Sequence) Archived() bool {
	return s.ArchivedAt != nil
}
