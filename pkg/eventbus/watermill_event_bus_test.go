package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/channels/gochannel"
	"github.com/cadencehq/cadence/pkg/events"
)

func setupBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(slog.Default()))
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestPublishAndSubscribeRoundTrip(t *testing.T) {
	bus := setupBus(t)

	received := make(chan *events.StepDue, 1)

	err := bus.Handle(events.StepDueEvent, func(_ context.Context, event any) error {
		if dueEvent, ok := event.(*events.StepDue); ok {
			received <- dueEvent
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	scheduled := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err = bus.Publish(t.Context(), "seq-1", events.StepDue{
		BaseEvent:   events.NewBaseEvent(events.StepDueEvent, "seq-1"),
		StepNumber:  2,
		ScheduledAt: scheduled,
	})
	require.NoError(t, err)

	select {
	case dueEvent := <-received:
		assert.Equal(t, "seq-1", dueEvent.SequenceID)
		assert.Equal(t, 2, dueEvent.StepNumber)
		assert.True(t, scheduled.Equal(dueEvent.ScheduledAt))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for step due event")
	}
}

func TestEventsWithoutHandlerAreAcked(t *testing.T) {
	bus := setupBus(t)

	received := make(chan *events.StepSent, 1)

	err := bus.Handle(events.StepSentEvent, func(_ context.Context, event any) error {
		if sentEvent, ok := event.(*events.StepSent); ok {
			received <- sentEvent
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(t.Context()))

	// No handler registered for this type; it must not wedge the stream.
	require.NoError(t, bus.Publish(t.Context(), "seq-1", events.StepDue{
		BaseEvent: events.NewBaseEvent(events.StepDueEvent, "seq-1"),
	}))

	require.NoError(t, bus.Publish(t.Context(), "seq-1", events.StepSent{
		BaseEvent:  events.NewBaseEvent(events.StepSentEvent, "seq-1"),
		StepNumber: 1,
	}))

	select {
	case sentEvent := <-received:
		assert.Equal(t, "seq-1", sentEvent.SequenceID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for step sent event")
	}
}

func TestGenerateID(t *testing.T) {
	bus := setupBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
