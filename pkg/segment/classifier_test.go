package segment

import (
	"testing"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		signals  map[string]int
		expected models.Segment
	}{
		{
			name:     "two critical signals",
			signals:  map[string]int{"critical_count": 2},
			expected: models.SegmentCritical,
		},
		{
			name:     "many critical signals",
			signals:  map[string]int{"critical_count": 7, "elevated_count": 9},
			expected: models.SegmentCritical,
		},
		{
			name:     "single critical signal",
			signals:  map[string]int{"critical_count": 1, "elevated_count": 0},
			expected: models.SegmentElevated,
		},
		{
			name:     "two elevated signals",
			signals:  map[string]int{"elevated_count": 2},
			expected: models.SegmentElevated,
		},
		{
			name:     "single critical outranks elevated tier check",
			signals:  map[string]int{"critical_count": 1, "elevated_count": 5},
			expected: models.SegmentElevated,
		},
		{
			name:     "empty input",
			signals:  map[string]int{},
			expected: models.SegmentBaseline,
		},
		{
			name:     "nil input",
			signals:  nil,
			expected: models.SegmentBaseline,
		},
		{
			name:     "one elevated signal only",
			signals:  map[string]int{"elevated_count": 1},
			expected: models.SegmentBaseline,
		},
		{
			name:     "unrelated keys are ignored",
			signals:  map[string]int{"page_views": 40, "downloads": 3},
			expected: models.SegmentBaseline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.signals))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	signals := map[string]int{"critical_count": 1, "elevated_count": 3}

	first := Classify(signals)
	for range 100 {
		assert.Equal(t, first, Classify(signals))
	}
}
