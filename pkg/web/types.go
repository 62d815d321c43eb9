// Package web provides the HTTP surface of the sequence engine: trigger
// ingestion and read endpoints for sequences and campaigns.
package web

import (
	"time"

	"github.com/cadencehq/cadence/pkg/campaign"
	"github.com/cadencehq/cadence/pkg/models"
)

// TriggerRequest is the webhook payload that starts a sequence.
type TriggerRequest struct {
	RecipientID  string            `json:"recipient_id"  validate:"required,min=1"`
	CampaignID   string            `json:"campaign_id"   validate:"required,min=1"`
	AnchorTime   *time.Time        `json:"anchor_time,omitempty"`
	SignalCounts map[string]int    `json:"signal_counts,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// TriggerResponse acknowledges trigger ingestion. Created distinguishes a
// newly materialized sequence from a duplicate that was absorbed.
type TriggerResponse struct {
	SequenceID string `json:"sequence_id"`
	Created    bool   `json:"created"`
}

// StepResponse is the read view of one sequence step.
type StepResponse struct {
	StepNumber        int               `json:"step_number"`
	Status            models.StepStatus `json:"status"`
	ScheduledAt       time.Time         `json:"scheduled_at"`
	SentAt            *time.Time        `json:"sent_at,omitempty"`
	FailedAt          *time.Time        `json:"failed_at,omitempty"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	Attempts          int               `json:"attempts"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
}

// SequenceResponse is the read view of a sequence with its steps.
type SequenceResponse struct {
	ID          string            `json:"id"`
	RecipientID string            `json:"recipient_id"`
	CampaignID  string            `json:"campaign_id"`
	Segment     models.Segment    `json:"segment"`
	AnchorTime  time.Time         `json:"anchor_time"`
	Steps       []StepResponse    `json:"steps"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CampaignResponse is the read view of a campaign definition.
type CampaignResponse struct {
	CampaignID  string                 `json:"campaign_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Steps       []CampaignStepResponse `json:"steps"`
}

type CampaignStepResponse struct {
	StepNumber       int                       `json:"step_number"`
	Offset           string                    `json:"offset"`
	Template         string                    `json:"template,omitempty"`
	SegmentTemplates map[models.Segment]string `json:"segment_templates,omitempty"`
}

// TransformSequenceResponse maps the persistence model onto the read view.
func TransformSequenceResponse(sequence *models.Sequence) SequenceResponse {
	steps := make([]StepResponse, 0, len(sequence.Steps))
	for i := range sequence.Steps {
		step := &sequence.Steps[i]
		steps = append(steps, StepResponse{
			StepNumber:        step.StepNumber,
			Status:            step.Status(),
			ScheduledAt:       step.ScheduledAt,
			SentAt:            step.SentAt,
			FailedAt:          step.FailedAt,
			FailureReason:     step.FailureReason,
			Attempts:          step.Attempts,
			ProviderMessageID: step.ProviderMessageID,
		})
	}

	return SequenceResponse{
		ID:          sequence.ID,
		RecipientID: sequence.RecipientID,
		CampaignID:  sequence.CampaignID,
		Segment:     sequence.Segment,
		AnchorTime:  sequence.AnchorTime,
		Steps:       steps,
		Attributes:  sequence.Attributes,
		CreatedAt:   sequence.CreatedAt,
		UpdatedAt:   sequence.UpdatedAt,
	}
}

// TransformCampaignResponse maps a definition onto the read view. Offsets
// travel as duration strings, matching the definition files.
func TransformCampaignResponse(definition *campaign.Definition) CampaignResponse {
	steps := make([]CampaignStepResponse, 0, len(definition.Steps))
	for _, step := range definition.Steps {
		steps = append(steps, CampaignStepResponse{
			StepNumber:       step.StepNumber,
			Offset:           step.Offset.String(),
			Template:         step.Template,
			SegmentTemplates: step.SegmentTemplates,
		})
	}

	return CampaignResponse{
		CampaignID:  definition.CampaignID,
		Name:        definition.Name,
		Description: definition.Description,
		Steps:       steps,
	}
}
