// Package campaign holds the static sequence definitions: which steps a
// campaign sends, at which offsets from the anchor, with which templates.
// Definitions are configuration loaded once at startup and never mutated
// at runtime.
package campaign

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cadencehq/cadence/pkg/models"
)

// StepDefinition describes one step of a campaign. Exactly one of Template
// or SegmentTemplates is set: a fixed template key for universal steps, or
// an enum-keyed map for segment-variant steps. The map form keeps the set
// of valid (step, segment) combinations checkable at load time instead of
// being assembled from strings at send time.
type StepDefinition struct {
	StepNumber int `json:"step_number"`

	// Offset is the duration between the sequence anchor time and this
	// step's fire time. Parsed from Go duration syntax ("0s", "48h").
	Offset time.Duration `json:"-"`

	Template         string                    `json:"template,omitempty"`
	SegmentTemplates map[models.Segment]string `json:"segment_templates,omitempty"`
}

// stepDefinitionJSON is the wire form; Offset travels as a duration string.
type stepDefinitionJSON struct {
	StepNumber       int                       `json:"step_number"`
	Offset           string                    `json:"offset"`
	Template         string                    `json:"template,omitempty"`
	SegmentTemplates map[models.Segment]string `json:"segment_templates,omitempty"`
}

func (d *StepDefinition) UnmarshalJSON(data []byte) error {
	var raw stepDefinitionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	offset, err := time.ParseDuration(raw.Offset)
	if err != nil {
		return fmt.Errorf("step %d: invalid offset %q: %w", raw.StepNumber, raw.Offset, err)
	}

	d.StepNumber = raw.StepNumber
	d.Offset = offset
	d.Template = raw.Template
	d.SegmentTemplates = raw.SegmentTemplates

	return nil
}

func (d StepDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepDefinitionJSON{
		StepNumber:       d.StepNumber,
		Offset:           d.Offset.String(),
		Template:         d.Template,
		SegmentTemplates: d.SegmentTemplates,
	})
}

// Definition is the ordered list of steps for one campaign.
type Definition struct {
	CampaignID  string           `json:"campaign_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Steps       []StepDefinition `json:"steps"`
}

// Step returns the definition for the given step number, or nil.
func (d *Definition) Step(stepNumber int) *StepDefinition {
	for i := range d.Steps {
		if d.Steps[i].StepNumber == stepNumber {
			return &d.Steps[i]
		}
	}

	return nil
}

// Validate checks the structural invariants a loadable definition must hold:
// at least one step, unique step numbers, non-decreasing offsets (within a
// sequence, steps fire at non-decreasing times by construction), and every
// step resolvable for every segment.
func (d *Definition) Validate() error {
	if d.CampaignID == "" {
		return fmt.Errorf("campaign definition missing campaign_id")
	}

	if len(d.Steps) == 0 {
		return fmt.Errorf("campaign %s: definition has no steps", d.CampaignID)
	}

	seen := make(map[int]bool, len(d.Steps))
	prev := time.Duration(-1)

	for _, step := range d.Steps {
		if seen[step.StepNumber] {
			return fmt.Errorf("campaign %s: duplicate step number %d", d.CampaignID, step.StepNumber)
		}

		seen[step.StepNumber] = true

		if step.Offset < 0 {
			return fmt.Errorf("campaign %s: step %d has negative offset", d.CampaignID, step.StepNumber)
		}

		if prev >= 0 && step.Offset < prev {
			return fmt.Errorf("campaign %s: step %d offset decreases", d.CampaignID, step.StepNumber)
		}

		prev = step.Offset

		if err := d.validateTemplateSelector(step); err != nil {
			return err
		}
	}

	return nil
}

func (d *Definition) validateTemplateSelector(step StepDefinition) error {
	if step.Template != "" && len(step.SegmentTemplates) > 0 {
		return fmt.Errorf("campaign %s: step %d sets both template and segment_templates", d.CampaignID, step.StepNumber)
	}

	if step.Template != "" {
		return nil
	}

	if len(step.SegmentTemplates) == 0 {
		return fmt.Errorf("campaign %s: step %d has no template selector", d.CampaignID, step.StepNumber)
	}

	// Segment-variant steps must cover the full segment enum; a partial map
	// would turn a missing variant into a send-time configuration error.
	for _, segment := range models.Segments() {
		if step.SegmentTemplates[segment] == "" {
			return fmt.Errorf("campaign %s: step %d missing template for segment %s", d.CampaignID, step.StepNumber, segment)
		}
	}

	for segment := range step.SegmentTemplates {
		if _, err := models.ParseSegment(segment.String()); err != nil {
			return fmt.Errorf("campaign %s: step %d: %w", d.CampaignID, step.StepNumber, err)
		}
	}

	return nil
}

// ResolveTemplate returns the template key for a step and segment.
// An empty string means the combination is not configured; callers treat
// that as a fatal configuration error, never as a default.
func (d *Definition) ResolveTemplate(stepNumber int, segment models.Segment) string {
	step := d.Step(stepNumber)
	if step == nil {
		return ""
	}

	if step.Template != "" {
		return step.Template
	}

	return step.SegmentTemplates[segment]
}
