package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence"
)

// SequenceRepository handles sequence database operations. All duplicate
// suppression runs on database constraints and conditional updates; the
// repository never does read-then-write decision making.
type SequenceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSequenceRepository creates a new sequence repository.
func NewSequenceRepository(db *sql.DB, logger *slog.Logger) *SequenceRepository {
	return &SequenceRepository{db: db, logger: logger.With("component", "sequence_repository")}
}

func (r *SequenceRepository) CreateIfAbsent(ctx context.Context, sequence *models.Sequence) (*models.Sequence, bool, error) {
	attributes, err := json.Marshal(sequence.Attributes)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode attributes: %w", err)
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	insertSequence := `
		INSERT INTO sequences (
			id, recipient_id, campaign_id, segment, anchor_time, attributes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (recipient_id, campaign_id) WHERE archived_at IS NULL
		DO NOTHING
	`

	result, err := transaction.ExecContext(ctx, insertSequence,
		sequence.ID,
		sequence.RecipientID,
		sequence.CampaignID,
		sequence.Segment.String(),
		sequence.AnchorTime,
		attributes,
		sequence.CreatedAt,
		sequence.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert sequence: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read insert result: %w", err)
	}

	if inserted == 0 {
		// Lost the uniqueness race or the sequence predates this trigger
		// either way the existing record wins, unchanged.
		existing, findErr := r.FindSequence(ctx, sequence.RecipientID, sequence.CampaignID)
		if findErr != nil {
			return nil, false, findErr
		}

		return existing, false, nil
	}

	insertStep := `
		INSERT INTO sequence_steps (sequence_id, step_number, scheduled_at)
		VALUES ($1, $2, $3)
	`

	for _, step := range sequence.Steps {
		_, err = transaction.ExecContext(ctx, insertStep, sequence.ID, step.StepNumber, step.ScheduledAt)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert step %d: %w", step.StepNumber, err)
		}
	}

	if err := transaction.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit sequence: %w", err)
	}

	r.logger.InfoContext(ctx, "Sequence created",
		"sequence_id", sequence.ID,
		"recipient_id", sequence.RecipientID,
		"campaign_id", sequence.CampaignID,
		"segment", sequence.Segment,
		"steps", len(sequence.Steps))

	return sequence, true, nil
}

func (r *SequenceRepository) SequenceByID(ctx context.Context, id string) (*models.Sequence, error) {
	query := `
		SELECT id, recipient_id, campaign_id, segment, anchor_time, attributes,
		       created_at, updated_at, archived_at
		FROM sequences
		WHERE id = $1
	`

	sequence, err := r.scanSequence(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := r.loadSteps(ctx, sequence); err != nil {
		return nil, err
	}

	return sequence, nil
}

func (r *SequenceRepository) FindSequence(ctx context.Context, recipientID, campaignID string) (*models.Sequence, error) {
	query := `
		SELECT id, recipient_id, campaign_id, segment, anchor_time, attributes,
		       created_at, updated_at, archived_at
		FROM sequences
		WHERE recipient_id = $1 AND campaign_id = $2 AND archived_at IS NULL
	`

	sequence, err := r.scanSequence(r.db.QueryRowContext(ctx, query, recipientID, campaignID))
	if err != nil {
		return nil, err
	}

	if err := r.loadSteps(ctx, sequence); err != nil {
		return nil, err
	}

	return sequence, nil
}

func (r *SequenceRepository) ListSequences(ctx context.Context, opts persistence.ListSequencesOptions) ([]*models.Sequence, error) {
	query := `
		SELECT id, recipient_id, campaign_id, segment, anchor_time, attributes,
		       created_at, updated_at, archived_at
		FROM sequences
		WHERE ($1 = '' OR recipient_id = $1)
		  AND ($2 = '' OR campaign_id = $2)
		ORDER BY created_at
	`

	args := []any{opts.RecipientID, opts.CampaignID}

	if opts.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequences: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var sequences []*models.Sequence

	for rows.Next() {
		sequence, err := r.scanSequence(rows)
		if err != nil {
			return nil, err
		}

		sequences = append(sequences, sequence)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sequences: %w", err)
	}

	for _, sequence := range sequences {
		if err := r.loadSteps(ctx, sequence); err != nil {
			return nil, err
		}
	}

	return sequences, nil
}

func (r *SequenceRepository) DuePendingSteps(ctx context.Context, now time.Time, redispatchAfter time.Duration) ([]persistence.StepRef, error) {
	query := `
		SELECT s.sequence_id, s.step_number, s.scheduled_at
		FROM sequence_steps s
		JOIN sequences q ON q.id = s.sequence_id
		WHERE s.sent_at IS NULL
		  AND s.failed_at IS NULL
		  AND s.scheduled_at <= $1
		  AND (s.dispatched_at IS NULL OR s.dispatched_at <= $2)
		  AND q.archived_at IS NULL
		ORDER BY s.scheduled_at
	`

	rows, err := r.db.QueryContext(ctx, query, now, now.Add(-redispatchAfter))
	if err != nil {
		return nil, fmt.Errorf("failed to query due steps: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var due []persistence.StepRef

	for rows.Next() {
		var ref persistence.StepRef
		if err := rows.Scan(&ref.SequenceID, &ref.StepNumber, &ref.ScheduledAt); err != nil {
			return nil, fmt.Errorf("failed to scan due step: %w", err)
		}

		due = append(due, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due steps: %w", err)
	}

	return due, nil
}

func (r *SequenceRepository) MarkStepDispatched(ctx context.Context, sequenceID string, stepNumber int, at time.Time) error {
	query := `
		UPDATE sequence_steps
		SET dispatched_at = $3
		WHERE sequence_id = $1 AND step_number = $2
	`

	return r.execStepUpdate(ctx, "MarkStepDispatched", sequenceID, stepNumber, false, query, sequenceID, stepNumber, at)
}

// MarkStepSent is the effectively-once boundary: the WHERE clause only
// matches while the step has no terminal outcome, so of N concurrent
// completions exactly one row update wins.
func (r *SequenceRepository) MarkStepSent(ctx context.Context, sequenceID string, stepNumber int, sentAt time.Time, providerMessageID string) error {
	query := `
		UPDATE sequence_steps
		SET sent_at = $3, provider_message_id = $4, attempts = attempts + 1, last_error = ''
		WHERE sequence_id = $1 AND step_number = $2
		  AND sent_at IS NULL AND failed_at IS NULL
	`

	return r.execStepUpdate(ctx, "MarkStepSent", sequenceID, stepNumber, true, query, sequenceID, stepNumber, sentAt, providerMessageID)
}

func (r *SequenceRepository) MarkStepFailed(ctx context.Context, sequenceID string, stepNumber int, failedAt time.Time, reason string) error {
	query := `
		UPDATE sequence_steps
		SET failed_at = $3, failure_reason = $4
		WHERE sequence_id = $1 AND step_number = $2
		  AND sent_at IS NULL AND failed_at IS NULL
	`

	return r.execStepUpdate(ctx, "MarkStepFailed", sequenceID, stepNumber, true, query, sequenceID, stepNumber, failedAt, reason)
}

func (r *SequenceRepository) RecordStepAttempt(ctx context.Context, sequenceID string, stepNumber int, lastError string) error {
	query := `
		UPDATE sequence_steps
		SET attempts = attempts + 1, last_error = $3
		WHERE sequence_id = $1 AND step_number = $2
	`

	return r.execStepUpdate(ctx, "RecordStepAttempt", sequenceID, stepNumber, false, query, sequenceID, stepNumber, lastError)
}

// execStepUpdate runs a step update and maps a zero-row result either to
// ErrStaleUpdate (conditional writes) or ErrStepNotFound.
func (r *SequenceRepository) execStepUpdate(ctx context.Context, op, sequenceID string, stepNumber int, conditional bool, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.NewStepError(op, sequenceID, stepNumber, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStepError(op, sequenceID, stepNumber, err)
	}

	if affected > 0 {
		return nil
	}

	if !conditional {
		return persistence.NewStepError(op, sequenceID, stepNumber, persistence.ErrStepNotFound)
	}

	exists, err := r.stepExists(ctx, sequenceID, stepNumber)
	if err != nil {
		return persistence.NewStepError(op, sequenceID, stepNumber, err)
	}

	if !exists {
		return persistence.NewStepError(op, sequenceID, stepNumber, persistence.ErrStepNotFound)
	}

	return persistence.NewStepError(op, sequenceID, stepNumber, persistence.ErrStaleUpdate)
}

func (r *SequenceRepository) stepExists(ctx context.Context, sequenceID string, stepNumber int) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM sequence_steps WHERE sequence_id = $1 AND step_number = $2)",
		sequenceID, stepNumber,
	).Scan(&exists)

	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SequenceRepository) scanSequence(row rowScanner) (*models.Sequence, error) {
	var (
		sequence   models.Sequence
		segment    string
		attributes []byte
		archivedAt sql.NullTime
	)

	err := row.Scan(
		&sequence.ID,
		&sequence.RecipientID,
		&sequence.CampaignID,
		&segment,
		&sequence.AnchorTime,
		&attributes,
		&sequence.CreatedAt,
		&sequence.UpdatedAt,
		&archivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrSequenceNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan sequence: %w", err)
	}

	parsedSegment, err := models.ParseSegment(segment)
	if err != nil {
		return nil, fmt.Errorf("corrupt sequence record: %w", err)
	}

	sequence.Segment = parsedSegment

	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &sequence.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode attributes: %w", err)
		}
	}

	if archivedAt.Valid {
		sequence.ArchivedAt = &archivedAt.Time
	}

	return &sequence, nil
}

func (r *SequenceRepository) loadSteps(ctx context.Context, sequence *models.Sequence) error {
	query := `
		SELECT step_number, scheduled_at, sent_at, failed_at, failure_reason,
		       attempts, last_error, dispatched_at, provider_message_id
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY step_number
	`

	rows, err := r.db.QueryContext(ctx, query, sequence.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var (
			step         models.SequenceStep
			sentAt       sql.NullTime
			failedAt     sql.NullTime
			dispatchedAt sql.NullTime
		)

		err := rows.Scan(
			&step.StepNumber,
			&step.ScheduledAt,
			&sentAt,
			&failedAt,
			&step.FailureReason,
			&step.Attempts,
			&step.LastError,
			&dispatchedAt,
			&step.ProviderMessageID,
		)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		if sentAt.Valid {
			step.SentAt = &sentAt.Time
		}

		if failedAt.Valid {
			step.FailedAt = &failedAt.Time
		}

		if dispatchedAt.Valid {
			step.DispatchedAt = &dispatchedAt.Time
		}

		sequence.Steps = append(sequence.Steps, step)
	}

	return rows.Err()
}
