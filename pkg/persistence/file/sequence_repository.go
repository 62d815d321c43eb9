package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence"
)

// SequenceRepository stores each sequence as sequences/<id>.json and keeps a
// keys/<recipient>__<campaign> file per live sequence. The key file is
// created with O_EXCL, which is the store-level uniqueness constraint that
// makes CreateIfAbsent safe under concurrent duplicate triggers.
type SequenceRepository struct {
	root string
	mu   sync.Mutex
}

func NewSequenceRepository(root string) *SequenceRepository {
	return &SequenceRepository{root: root}
}

func (r *SequenceRepository) sequencePath(id string) string {
	return filepath.Join(r.root, "sequences", id+".json")
}

func (r *SequenceRepository) keyPath(recipientID, campaignID string) string {
	key := url.PathEscape(recipientID) + "__" + url.PathEscape(campaignID)

	return filepath.Join(r.root, "keys", key)
}

func (r *SequenceRepository) ensureDirs() error {
	for _, dir := range []string{filepath.Join(r.root, "sequences"), filepath.Join(r.root, "keys")} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// CreateIfAbsent implements the idempotent creation contract. The key file
// claim decides the race; the loser reads back whichever sequence won.
func (r *SequenceRepository) CreateIfAbsent(ctx context.Context, sequence *models.Sequence) (*models.Sequence, bool, error) {
	if err := r.ensureDirs(); err != nil {
		return nil, false, err
	}

	keyPath := r.keyPath(sequence.RecipientID, sequence.CampaignID)

	keyFile, err := os.OpenFile(keyPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		// The winner may still be writing its sequence file; give it a
		// moment before reporting the store inconsistent.
		var existing *models.Sequence

		findErr := persistence.ErrSequenceNotFound
		for range 50 {
			existing, findErr = r.FindSequence(ctx, sequence.RecipientID, sequence.CampaignID)
			if findErr == nil {
				return existing, false, nil
			}

			if !persistence.IsSequenceNotFound(findErr) {
				break
			}

			time.Sleep(10 * time.Millisecond)
		}

		return nil, false, findErr
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to claim sequence key: %w", err)
	}

	if _, err := keyFile.WriteString(sequence.ID); err != nil {
		_ = keyFile.Close()

		return nil, false, fmt.Errorf("failed to write sequence key: %w", err)
	}

	if err := keyFile.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to close sequence key: %w", err)
	}

	if err := r.writeSequence(sequence); err != nil {
		return nil, false, err
	}

	return sequence, true, nil
}

func (r *SequenceRepository) SequenceByID(_ context.Context, id string) (*models.Sequence, error) {
	return r.readSequence(id)
}

func (r *SequenceRepository) FindSequence(_ context.Context, recipientID, campaignID string) (*models.Sequence, error) {
	data, err := os.ReadFile(r.keyPath(recipientID, campaignID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrSequenceNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read sequence key: %w", err)
	}

	sequence, err := r.readSequence(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}

	if sequence.Archived() {
		return nil, persistence.ErrSequenceNotFound
	}

	return sequence, nil
}

func (r *SequenceRepository) ListSequences(_ context.Context, opts persistence.ListSequencesOptions) ([]*models.Sequence, error) {
	dir := filepath.Join(r.root, "sequences")

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list sequences: %w", err)
	}

	var sequences []*models.Sequence

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		sequence, err := r.readSequence(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if opts.RecipientID != "" && sequence.RecipientID != opts.RecipientID {
			continue
		}

		if opts.CampaignID != "" && sequence.CampaignID != opts.CampaignID {
			continue
		}

		sequences = append(sequences, sequence)
	}

	sort.Slice(sequences, func(i, j int) bool {
		return sequences[i].CreatedAt.Before(sequences[j].CreatedAt)
	})

	if opts.Limit > 0 && len(sequences) > opts.Limit {
		sequences = sequences[:opts.Limit]
	}

	return sequences, nil
}

func (r *SequenceRepository) DuePendingSteps(ctx context.Context, now time.Time, redispatchAfter time.Duration) ([]persistence.StepRef, error) {
	sequences, err := r.ListSequences(ctx, persistence.ListSequencesOptions{})
	if err != nil {
		return nil, err
	}

	var due []persistence.StepRef

	for _, sequence := range sequences {
		if sequence.Archived() {
			continue
		}

		for _, step := range sequence.Steps {
			if step.Terminal() || step.ScheduledAt.After(now) {
				continue
			}

			if step.DispatchedAt != nil && now.Sub(*step.DispatchedAt) < redispatchAfter {
				continue
			}

			due = append(due, persistence.StepRef{
				SequenceID:  sequence.ID,
				StepNumber:  step.StepNumber,
				ScheduledAt: step.ScheduledAt,
			})
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})

	return due, nil
}

func (r *SequenceRepository) MarkStepDispatched(_ context.Context, sequenceID string, stepNumber int, at time.Time) error {
	return r.updateStep("MarkStepDispatched", sequenceID, stepNumber, func(step *models.SequenceStep) error {
		step.DispatchedAt = &at

		return nil
	})
}

func (r *SequenceRepository) MarkStepSent(_ context.Context, sequenceID string, stepNumber int, sentAt time.Time, providerMessageID string) error {
	return r.updateStep("MarkStepSent", sequenceID, stepNumber, func(step *models.SequenceStep) error {
		if step.Terminal() {
			return persistence.ErrStaleUpdate
		}

		step.SentAt = &sentAt
		step.ProviderMessageID = providerMessageID
		step.Attempts++
		step.LastError = ""

		return nil
	})
}

func (r *SequenceRepository) MarkStepFailed(_ context.Context, sequenceID string, stepNumber int, failedAt time.Time, reason string) error {
	return r.updateStep("MarkStepFailed", sequenceID, stepNumber, func(step *models.SequenceStep) error {
		if step.Terminal() {
			return persistence.ErrStaleUpdate
		}

		step.FailedAt = &failedAt
		step.FailureReason = reason

		return nil
	})
}

func (r *SequenceRepository) RecordStepAttempt(_ context.Context, sequenceID string, stepNumber int, lastError string) error {
	return r.updateStep("RecordStepAttempt", sequenceID, stepNumber, func(step *models.SequenceStep) error {
		step.Attempts++
		step.LastError = lastError

		return nil
	})
}

// updateStep serializes read-modify-write cycles behind the repository lock.
func (r *SequenceRepository) updateStep(op, sequenceID string, stepNumber int, mutate func(*models.SequenceStep) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sequence, err := r.readSequence(sequenceID)
	if err != nil {
		return persistence.NewStepError(op, sequenceID, stepNumber, err)
	}

	step := sequence.Step(stepNumber)
	if step == nil {
		return persistence.NewStepError(op, sequenceID, stepNumber, persistence.ErrStepNotFound)
	}

	if err := mutate(step); err != nil {
		return persistence.NewStepError(op, sequenceID, stepNumber, err)
	}

	sequence.UpdatedAt = time.Now().UTC()

	if err := r.writeSequence(sequence); err != nil {
		return persistence.NewStepError(op, sequenceID, stepNumber, err)
	}

	return nil
}

func (r *SequenceRepository) readSequence(id string) (*models.Sequence, error) {
	data, err := os.ReadFile(r.sequencePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrSequenceNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read sequence %s: %w", id, err)
	}

	var sequence models.Sequence
	if err := json.Unmarshal(data, &sequence); err != nil {
		return nil, fmt.Errorf("failed to parse sequence %s: %w", id, err)
	}

	return &sequence, nil
}

func (r *SequenceRepository) writeSequence(sequence *models.Sequence) error {
	if err := r.ensureDirs(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(sequence, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sequence %s: %w", sequence.ID, err)
	}

	// Write-then-rename keeps readers from observing partial files.
	tmp := r.sequencePath(sequence.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write sequence %s: %w", sequence.ID, err)
	}

	if err := os.Rename(tmp, r.sequencePath(sequence.ID)); err != nil {
		return fmt.Errorf("failed to store sequence %s: %w", sequence.ID, err)
	}

	return nil
}
