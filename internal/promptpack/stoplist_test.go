package promptpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMeaninglessMemo_Empty(t *testing.T) {
	assert.True(t, IsMeaninglessMemo(""))
	assert.True(t, IsMeaninglessMemo("   "))
}

func TestIsMeaninglessMemo_ExactMatches(t *testing.T) {
	for _, memo := range []string{"none", "None", "Unknown", "not mentioned", "N/A", "未提及"} {
		assert.True(t, IsMeaninglessMemo(memo), "%q should be treated as meaningless", memo)
	}
}

func TestIsMeaninglessMemo_FuzzyMatch(t *testing.T) {
	assert.True(t, IsMeaninglessMemo("unknwn"), "a small typo of a stoplist phrase should still match")
}

func TestIsMeaninglessMemo_RealContent(t *testing.T) {
	for _, memo := range []string{
		"works as a senior backend engineer",
		"allergic to peanuts",
		"lives in Lisbon with two cats",
	} {
		assert.False(t, IsMeaninglessMemo(memo), "%q carries real information and should be kept", memo)
	}
}
