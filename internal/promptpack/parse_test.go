package promptpack

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skorpland/powermemo/internal/model"
)

const sep = "::"

func TestParseMergeAction(t *testing.T) {
	action, ok := ParseMergeAction("- append::user now works remotely", sep)
	assert.True(t, ok)
	assert.Equal(t, "APPEND", action.Action)
	assert.Equal(t, "user now works remotely", action.Memo)
}

func TestParseMergeAction_IgnoresLeadingNoise(t *testing.T) {
	response := "some reasoning about the merge\n- revise::user switched jobs\n"
	action, ok := ParseMergeAction(response, sep)
	assert.True(t, ok)
	assert.Equal(t, "REVISE", action.Action)
	assert.Equal(t, "user switched jobs", action.Memo)
}

func TestParseMergeAction_NoBulletLine(t *testing.T) {
	_, ok := ParseMergeAction("no bullet line here at all", sep)
	assert.False(t, ok)
}

func TestParseMergeAction_MalformedLine(t *testing.T) {
	_, ok := ParseMergeAction("- append::too::many::separators", sep)
	assert.False(t, ok)
}

func TestParseExtractedProfiles(t *testing.T) {
	response := "- Work::Role::senior engineer\n- Diet::Allergies::none\n- Hobbies::Sports::plays tennis on weekends"
	out := ParseExtractedProfiles(response, sep)

	assert := assert.New(t)
	if assert.Len(out, 2) {
		assert.Equal(ExtractedProfile{Topic: "work", SubTopic: "role", Memo: "senior engineer"}, out[0])
		assert.Equal(ExtractedProfile{Topic: "hobbies", SubTopic: "sports", Memo: "plays tennis on weekends"}, out[1])
	}
}

func TestParseExtractedProfiles_SkipsMalformedLines(t *testing.T) {
	response := "- Work::Role\n- Diet::Allergies::peanut allergy"
	out := ParseExtractedProfiles(response, sep)
	if assert.Len(t, out, 1) {
		assert.Equal(t, "peanut allergy", out[0].Memo)
	}
}

func TestParseOrganizedSubtopics(t *testing.T) {
	response := "- Role::senior engineer\n- Team::unknown\n- Location::remote from Lisbon"
	out := ParseOrganizedSubtopics(response, sep)

	if assert.Len(t, out, 2) {
		assert.Equal(t, "role", out[0].SubTopic)
		assert.Equal(t, "senior engineer", out[0].Memo)
		assert.Equal(t, "location", out[1].SubTopic)
	}
}

func TestParseEventTags(t *testing.T) {
	response := "- mood::excited\n- topic::career change\nnot a tag line"
	out := ParseEventTags(response, sep)

	assert.Equal(t, []model.EventTag{
		{Tag: "mood", Value: "excited"},
		{Tag: "topic", Value: "career change"},
	}, out)
}

func TestParseEventTags_Empty(t *testing.T) {
	out := ParseEventTags("nothing to see here", sep)
	assert.Empty(t, out)
}
