package models

import "time"

// TriggerEvent is the normalized form of one inbound trigger. It lives only
// for the duration of the ingestion request: sequence creation consumes it
// and the durable Sequence record is what survives.
type TriggerEvent struct {
	// RecipientID is the stable identity the sequence is addressed to,
	// typically an email address.
	RecipientID string `json:"recipient_id"`

	// CampaignID selects the sequence definition to run.
	CampaignID string `json:"campaign_id"`

	// AnchorTime is the caller-supplied instant step offsets are measured
	// from. Nil means the idempotency guard records ingestion time instead;
	// that fallback is applied exactly once, at creation.
	AnchorTime *time.Time `json:"anchor_time,omitempty"`

	// SignalCounts are the named counters the segment classifier reads.
	SignalCounts map[string]int `json:"signal_counts,omitempty"`

	// Attributes are copied verbatim onto the sequence and used for
	// template variable substitution at send time.
	Attributes map[string]string `json:"attributes,omitempty"`
}
