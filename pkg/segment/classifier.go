// Package segment classifies trigger signal counts into delivery segments.
package segment

import "github.com/cadencehq/cadence/pkg/models"

// Signal count keys read by the classifier. Any key missing from the input
// map counts as zero.
const (
	CriticalCountKey = "critical_count"
	ElevatedCountKey = "elevated_count"
)

// Classify maps signal counts to exactly one segment. It is pure and total:
// every input, including nil and all-zero maps, yields a segment.
//
// The tiers are evaluated in fixed priority order and the first match wins.
// This ordering is part of the contract; callers depend on a recipient with
// two critical signals never landing in the elevated tier.
func Classify(signals map[string]int) models.Segment {
	critical := signals[CriticalCountKey]
	elevated := signals[ElevatedCountKey]

	switch {
	case critical >= 2:
		return models.SegmentCritical
	case critical == 1 || elevated >= 2:
		return models.SegmentElevated
	default:
		return models.SegmentBaseline
	}
}
