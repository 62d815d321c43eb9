// Package persistence provides the data storage abstraction for sequences.
package persistence

import (
	"context"
	"time"

	"github.com/cadencehq/cadence/pkg/models"
)

// SequenceRepository is the durable record store the engine trusts as its
// single source of truth. Implementations must make CreateIfAbsent and the
// Mark* methods race-safe: a store-level uniqueness constraint for creation
// and conditional writes for step outcomes, never read-then-write.
type SequenceRepository interface {
	// CreateIfAbsent persists the sequence unless a non-archived sequence
	// for the same (recipient_id, campaign_id) already exists. It returns
	// the winning sequence and whether this call created it. Under
	// concurrent duplicate triggers exactly one caller observes
	// created=true; every other caller gets the existing record unchanged.
	CreateIfAbsent(ctx context.Context, sequence *models.Sequence) (*models.Sequence, bool, error)

	// SequenceByID reloads a sequence with all of its steps.
	SequenceByID(ctx context.Context, id string) (*models.Sequence, error)

	// FindSequence looks up the non-archived sequence for a recipient and
	// campaign. Returns ErrSequenceNotFound when none exists.
	FindSequence(ctx context.Context, recipientID, campaignID string) (*models.Sequence, error)

	// ListSequences returns sequences filtered by the given options.
	ListSequences(ctx context.Context, opts ListSequencesOptions) ([]*models.Sequence, error)

	// DuePendingSteps returns step references whose scheduled_at has passed,
	// that have no terminal outcome, and that were either never dispatched
	// or were dispatched longer than redispatchAfter ago. The redispatch
	// window is what turns the poller into an at-least-once substrate:
	// a dispatch lost to a crashed worker is re-published after the window.
	DuePendingSteps(ctx context.Context, now time.Time, redispatchAfter time.Duration) ([]StepRef, error)

	// MarkStepDispatched records that a due event was published for the
	// step. Dispatch bookkeeping is best effort; losing it only causes an
	// extra publication, which the executor's idempotency check absorbs.
	MarkStepDispatched(ctx context.Context, sequenceID string, stepNumber int, at time.Time) error

	// MarkStepSent sets sent_at and the provider message id, conditional on
	// the step having no terminal outcome yet. Returns ErrStaleUpdate when
	// the condition fails, meaning a concurrent execution already finished
	// the step and this result must be dropped.
	MarkStepSent(ctx context.Context, sequenceID string, stepNumber int, sentAt time.Time, providerMessageID string) error

	// MarkStepFailed records a terminal failure under the same condition
	// as MarkStepSent.
	MarkStepFailed(ctx context.Context, sequenceID string, stepNumber int, failedAt time.Time, reason string) error

	// RecordStepAttempt increments the step's attempt counter and stores
	// the most recent error. Called on every failed provider call,
	// including ones that will be retried.
	RecordStepAttempt(ctx context.Context, sequenceID string, stepNumber int, lastError string) error
}

// StepRef identifies one step of one sequence on the wire and in work queues.
type StepRef struct {
	SequenceID  string    `json:"sequence_id"`
	StepNumber  int       `json:"step_number"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// ListSequencesOptions filters sequence listings.
type ListSequencesOptions struct {
	RecipientID string
	CampaignID  string
	Limit       int
}

// Persistence aggregates the repositories and lifecycle of a storage backend.
type Persistence interface {
	SequenceRepository() SequenceRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
