package sequence

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/campaign"
	"github.com/cadencehq/cadence/pkg/eventbus"
	"github.com/cadencehq/cadence/pkg/events"
	"github.com/cadencehq/cadence/pkg/models"
)

type fakeRepository struct {
	mu        sync.Mutex
	sequences map[string]*models.Sequence
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{sequences: make(map[string]*models.Sequence)}
}

func (r *fakeRepository) CreateIfAbsent(_ context.Context, sequence *models.Sequence) (*models.Sequence, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sequence.RecipientID + "|" + sequence.CampaignID
	if existing, ok := r.sequences[key]; ok {
		return existing, false, nil
	}

	r.sequences[key] = sequence

	return sequence, true, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func testRegistry(t *testing.T) *campaign.Registry {
	t.Helper()

	registry := campaign.NewRegistry(slog.Default())
	err := registry.Register(&campaign.Definition{
		CampaignID: "onboarding",
		Name:       "Onboarding",
		Steps: []campaign.StepDefinition{
			{StepNumber: 1, Offset: 0, Template: "welcome"},
			{StepNumber: 2, Offset: 60 * time.Second, Template: "tips"},
			{StepNumber: 3, Offset: 120 * time.Second, Template: "checkin"},
		},
	})
	require.NoError(t, err)

	return registry
}

func TestProcessTriggerCreatesSequence(t *testing.T) {
	repo := newFakeRepository()
	publisher := &capturingPublisher{}
	service := NewService(slog.Default(), testRegistry(t), repo, publisher)

	anchor := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	trigger := models.TriggerEvent{
		RecipientID:  "r-1",
		CampaignID:   "onboarding",
		AnchorTime:   &anchor,
		SignalCounts: map[string]int{"critical_count": 2},
		Attributes:   map[string]string{"first_name": "Ada"},
	}

	sequence, created, err := service.ProcessTrigger(t.Context(), trigger)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, sequence.ID)
	assert.Equal(t, models.SegmentCritical, sequence.Segment)
	assert.Equal(t, anchor, sequence.AnchorTime)

	require.Len(t, sequence.Steps, 3)
	assert.Equal(t, anchor, sequence.Steps[0].ScheduledAt)
	assert.Equal(t, anchor.Add(60*time.Second), sequence.Steps[1].ScheduledAt)
	assert.Equal(t, anchor.Add(120*time.Second), sequence.Steps[2].ScheduledAt)

	for _, step := range sequence.Steps {
		assert.Equal(t, models.StepStatusPending, step.Status())
	}

	require.Len(t, publisher.events, 1)
	createdEvent, ok := publisher.events[0].(events.SequenceCreated)
	require.True(t, ok)
	assert.Equal(t, sequence.ID, createdEvent.SequenceID)
	assert.Equal(t, 3, createdEvent.StepCount)
}

func TestProcessTriggerDuplicateIsAbsorbed(t *testing.T) {
	repo := newFakeRepository()
	publisher := &capturingPublisher{}
	service := NewService(slog.Default(), testRegistry(t), repo, publisher)

	trigger := models.TriggerEvent{RecipientID: "r-1", CampaignID: "onboarding"}

	first, created, err := service.ProcessTrigger(t.Context(), trigger)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := service.ProcessTrigger(t.Context(), trigger)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Only the winning creation publishes.
	assert.Len(t, publisher.events, 1)
}

func TestProcessTriggerAnchorDefaultsToNow(t *testing.T) {
	repo := newFakeRepository()
	service := NewService(slog.Default(), testRegistry(t), repo, &capturingPublisher{})

	before := time.Now().UTC()
	sequence, _, err := service.ProcessTrigger(t.Context(), models.TriggerEvent{
		RecipientID: "r-2",
		CampaignID:  "onboarding",
	})
	require.NoError(t, err)
	after := time.Now().UTC()

	assert.False(t, sequence.AnchorTime.Before(before))
	assert.False(t, sequence.AnchorTime.After(after))
}

func TestProcessTriggerValidation(t *testing.T) {
	service := NewService(slog.Default(), testRegistry(t), newFakeRepository(), &capturingPublisher{})

	t.Run("missing recipient", func(t *testing.T) {
		_, _, err := service.ProcessTrigger(t.Context(), models.TriggerEvent{CampaignID: "onboarding"})
		assert.ErrorIs(t, err, ErrMissingRecipientID)
	})

	t.Run("missing campaign", func(t *testing.T) {
		_, _, err := service.ProcessTrigger(t.Context(), models.TriggerEvent{RecipientID: "r-1"})
		assert.ErrorIs(t, err, ErrMissingCampaignID)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		_, _, err := service.ProcessTrigger(t.Context(), models.TriggerEvent{RecipientID: "r-1", CampaignID: "nope"})
		assert.ErrorIs(t, err, campaign.ErrCampaignNotFound)
	})
}
