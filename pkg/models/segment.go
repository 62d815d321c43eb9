package models

import "fmt"

// Segment is the classification bucket assigned to a sequence at creation.
// It controls which template variant segment-variant steps resolve to and
// is write-once: reclassification after creation is never allowed.
type Segment string

const (
	SegmentCritical Segment = "critical"
	SegmentElevated Segment = "elevated"
	SegmentBaseline Segment = "baseline"
)

// Segments lists every valid segment value. Segment-variant template maps
// in campaign definitions must cover exactly this set.
func Segments() []Segment {
	return []Segment{SegmentCritical, SegmentElevated, SegmentBaseline}
}

// ParseSegment converts a stored string back into a Segment.
func ParseSegment(value string) (Segment, error) {
	switch Segment(value) {
	case SegmentCritical, SegmentElevated, SegmentBaseline:
		return Segment(value), nil
	default:
		return "", fmt.Errorf("unknown segment: %q", value)
	}
}

func (s Segment) String() string {
	return string(s)
}
