package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		recorded   []int
		discovered []int
		expected   Classification[int]
	}{
		{
			name:     "no information",
			expected: Classification[int]{Outcome: NoInformation},
		},
		{
			name:       "perfect match",
			recorded:   []int{5},
			discovered: []int{5},
			expected:   Classification[int]{Outcome: PerfectMatch},
		},
		{
			name:       "perfect match multiple",
			recorded:   []int{5, 7},
			discovered: []int{7, 5},
			expected:   Classification[int]{Outcome: PerfectMatch},
		},
		{
			name:       "adopt single discovery",
			discovered: []int{7},
			expected:   Classification[int]{Outcome: Adopt, AdoptID: 7},
		},
		{
			name:       "multiple candidates",
			discovered: []int{7, 9},
			expected:   Classification[int]{Outcome: MultipleCandidates, Extra: []int{7, 9}},
		},
		{
			name:     "recorded only",
			recorded: []int{5},
			expected: Classification[int]{Outcome: RecordedOnly, Unmatched: []int{5}},
		},
		{
			name:       "recorded only with partial discovery",
			recorded:   []int{5, 7},
			discovered: []int{5},
			expected:   Classification[int]{Outcome: RecordedOnly, Unmatched: []int{7}},
		},
		{
			name:       "conflict",
			recorded:   []int{5},
			discovered: []int{7},
			expected:   Classification[int]{Outcome: Conflict, Extra: []int{7}, Unmatched: []int{5}},
		},
		{
			name:       "additional discovered",
			recorded:   []int{5},
			discovered: []int{5, 7},
			expected:   Classification[int]{Outcome: AdditionalDiscovered, Extra: []int{7}},
		},
		{
			name:       "mixed overlap",
			recorded:   []int{5, 9},
			discovered: []int{5, 7},
			expected:   Classification[int]{Outcome: MixedOverlap, Extra: []int{7}, Unmatched: []int{9}},
		},
		{
			name:       "duplicates collapse",
			discovered: []int{7, 7},
			expected:   Classification[int]{Outcome: Adopt, AdoptID: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.recorded, tt.discovered))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "perfect match", PerfectMatch.String())
	assert.Equal(t, "identifier found", Adopt.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
