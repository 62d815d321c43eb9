package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/models"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(StepDueEvent, "seq-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, StepDueEvent, event.Type)
	assert.Equal(t, "seq-1", event.SequenceID)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Second)
}

func TestSequenceCreated_JSONSerialization(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	original := SequenceCreated{
		BaseEvent:   NewBaseEvent(SequenceCreatedEvent, "seq-123"),
		RecipientID: "recipient-456",
		CampaignID:  "onboarding",
		Segment:     models.SegmentElevated,
		AnchorTime:  anchor,
		StepCount:   3,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"sequence_id":"seq-123"`)
	assert.Contains(t, string(jsonData), `"segment":"elevated"`)

	var deserialized SequenceCreated

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, original.RecipientID, deserialized.RecipientID)
	assert.Equal(t, original.CampaignID, deserialized.CampaignID)
	assert.Equal(t, original.Segment, deserialized.Segment)
	assert.True(t, original.AnchorTime.Equal(deserialized.AnchorTime))
	assert.Equal(t, original.StepCount, deserialized.StepCount)
	assert.Equal(t, SequenceCreatedEvent, deserialized.GetType())
}

func TestStepEvents_GetType(t *testing.T) {
	assert.Equal(t, StepDueEvent, StepDue{}.GetType())
	assert.Equal(t, StepSentEvent, StepSent{}.GetType())
	assert.Equal(t, StepFailedEvent, StepFailed{}.GetType())
	assert.Equal(t, SequenceCreatedEvent, SequenceCreated{}.GetType())
}
