package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/eventbus"
	"github.com/cadencehq/cadence/pkg/events"
	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence"
	"github.com/cadencehq/cadence/pkg/persistence/file"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) captured() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

func testRepository(t *testing.T) persistence.SequenceRepository {
	t.Helper()

	return file.NewPersistence("file://" + t.TempDir()).SequenceRepository()
}

func seedSequence(t *testing.T, repo persistence.SequenceRepository, id string, scheduledAt time.Time) {
	t.Helper()

	now := time.Now().UTC()
	_, created, err := repo.CreateIfAbsent(t.Context(), &models.Sequence{
		ID:          id,
		RecipientID: "recipient-" + id,
		CampaignID:  "onboarding",
		Segment:     models.SegmentBaseline,
		AnchorTime:  scheduledAt,
		Steps: []models.SequenceStep{
			{StepNumber: 1, ScheduledAt: scheduledAt},
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestSweepDispatchesPastDueSteps(t *testing.T) {
	repo := testRepository(t)
	publisher := &capturingPublisher{}

	// Due an hour ago: a step that became due while nothing ran still fires.
	seedSequence(t, repo, "seq-overdue", time.Now().UTC().Add(-time.Hour))
	seedSequence(t, repo, "seq-future", time.Now().UTC().Add(time.Hour))

	dispatcher, err := NewDispatcher(slog.Default(), repo, publisher, Config{})
	require.NoError(t, err)

	count, err := dispatcher.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	captured := publisher.captured()
	require.Len(t, captured, 1)

	due, ok := captured[0].(events.StepDue)
	require.True(t, ok)
	assert.Equal(t, "seq-overdue", due.SequenceID)
	assert.Equal(t, 1, due.StepNumber)
}

func TestSweepHonorsRedispatchWindow(t *testing.T) {
	repo := testRepository(t)
	publisher := &capturingPublisher{}

	seedSequence(t, repo, "seq-1", time.Now().UTC().Add(-time.Minute))

	dispatcher, err := NewDispatcher(slog.Default(), repo, publisher, Config{RedispatchAfter: 5 * time.Minute})
	require.NoError(t, err)

	count, err := dispatcher.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Second sweep inside the window publishes nothing.
	count, err = dispatcher.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Len(t, publisher.captured(), 1)
}

func TestSweepSkipsDispatchMarkOnPublishFailure(t *testing.T) {
	repo := testRepository(t)
	publisher := &capturingPublisher{err: errors.New("broker down")}

	seedSequence(t, repo, "seq-1", time.Now().UTC().Add(-time.Minute))

	dispatcher, err := NewDispatcher(slog.Default(), repo, publisher, Config{})
	require.NoError(t, err)

	count, err := dispatcher.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The step stays immediately redispatchable because the failed publish
	// never marked it dispatched.
	publisher.err = nil
	count, err = dispatcher.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStartAndStop(t *testing.T) {
	repo := testRepository(t)
	publisher := &capturingPublisher{}

	seedSequence(t, repo, "seq-1", time.Now().UTC().Add(-time.Minute))

	dispatcher, err := NewDispatcher(slog.Default(), repo, publisher, Config{PollInterval: time.Hour})
	require.NoError(t, err)

	require.NoError(t, dispatcher.Start(t.Context()))

	// The startup sweep runs synchronously inside Start.
	assert.Len(t, publisher.captured(), 1)

	require.NoError(t, dispatcher.Stop(t.Context()))
	require.NoError(t, dispatcher.Stop(t.Context()))
}

func TestStopReleasesPollLoop(t *testing.T) {
	dispatcher, err := NewDispatcher(slog.Default(), testRepository(t), &capturingPublisher{}, Config{PollInterval: time.Hour})
	require.NoError(t, err)

	require.NoError(t, dispatcher.Start(t.Context()))
	require.NoError(t, dispatcher.Stop(t.Context()))

	// The shutdown signal must hold even for a goroutine that was busy
	// sweeping when Stop ran. A closed channel delivers to any number of
	// late receivers; a one-shot send would not.
	select {
	case <-dispatcher.done:
	default:
		t.Fatal("done channel still open after Stop")
	}
}

func TestNewDispatcherRejectsBadRecoverySchedule(t *testing.T) {
	_, err := NewDispatcher(slog.Default(), testRepository(t), &capturingPublisher{}, Config{
		RecoverySchedule: "not a cron line",
	})
	assert.Error(t, err)
}
