package chatflush

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/promptpack"
)

func TestRenderBlobLines_Chat(t *testing.T) {
	blob := model.Blob{
		Type: model.BlobTypeChat,
		Messages: []model.ChatMessage{
			{Role: "user", Content: "hi there"},
			{Role: "assistant", Alias: "Assistant", Content: "hello!"},
		},
	}

	lines := renderBlobLines(blob)

	assert.Equal(t, []string{"user: hi there", "Assistant: hello!"}, lines)
}

func TestRenderBlobLines_Doc(t *testing.T) {
	blob := model.Blob{Type: model.BlobTypeDoc, Content: "a standalone document blob"}
	lines := renderBlobLines(blob)
	assert.Equal(t, []string{"a standalone document blob"}, lines)
}

func TestSplitMergeResults_NewAndUpdate(t *testing.T) {
	existing := model.Profile{ID: "p1", Content: "old content", Attributes: model.ProfileAttributes{Topic: "work", SubTopic: "role"}}

	merges := []mergeResult{
		{key: model.ProfileKey{Topic: "hobbies", SubTopic: "sports"}, action: "APPEND", content: "plays tennis", candidateMemo: "plays tennis", isNew: true},
		{key: model.ProfileKey{Topic: "work", SubTopic: "role"}, action: "REVISE", content: "senior engineer now", candidateMemo: "now a senior engineer", existing: existing},
	}

	toAdd, toUpdate, toDelete, deltas := splitMergeResults(merges)

	require.Len(t, toAdd, 1)
	assert.Equal(t, "plays tennis", toAdd[0].Content)
	assert.Equal(t, "hobbies", toAdd[0].Attributes.Topic)

	require.Len(t, toUpdate, 1)
	assert.Equal(t, "p1", toUpdate[0].ID)
	require.NotNil(t, toUpdate[0].Content)
	assert.Equal(t, "senior engineer now", *toUpdate[0].Content)
	require.NotNil(t, toUpdate[0].Attributes)
	assert.Equal(t, 1, toUpdate[0].Attributes.UpdateHits, "update_hits increments from the existing profile's count")

	assert.Empty(t, toDelete)
	require.Len(t, deltas, 2)
	for _, d := range deltas {
		if d.Attributes.Topic == "work" {
			assert.Equal(t, "now a senior engineer", d.Content, "the archived delta records the extracted candidate's memo, not the merged content")
		}
	}
}

func TestSplitMergeResults_AbortQueuesDeleteOnlyForExisting(t *testing.T) {
	existing := model.Profile{ID: "p1", Content: "unchanged", Attributes: model.ProfileAttributes{Topic: "diet", SubTopic: "allergies"}}

	merges := []mergeResult{
		{key: model.ProfileKey{Topic: "diet", SubTopic: "allergies"}, action: "ABORT", existing: existing},
		{key: model.ProfileKey{Topic: "new", SubTopic: "topic"}, action: "ABORT", isNew: true, content: "never queued"},
	}

	toAdd, toUpdate, toDelete, deltas := splitMergeResults(merges)

	assert.Empty(t, toUpdate, "an ABORT on an existing profile produces no update")
	assert.Empty(t, toAdd, "an ABORT on a brand-new candidate adds nothing")
	require.Len(t, toDelete, 1, "an ABORT on an existing profile retracts it")
	assert.Equal(t, "p1", toDelete[0])
	assert.Empty(t, deltas, "no delta is recorded for a rejected candidate")
}

func TestSplitMergeResults_LastWriteWinsOnDuplicateKey(t *testing.T) {
	key := model.ProfileKey{Topic: "work", SubTopic: "role"}
	merges := []mergeResult{
		{key: key, action: "APPEND", content: "first draft", candidateMemo: "first draft", isNew: true},
		{key: key, action: "APPEND", content: "final draft", candidateMemo: "final draft", isNew: true},
	}

	toAdd, _, _, deltas := splitMergeResults(merges)

	require.Len(t, toAdd, 1)
	assert.Equal(t, "final draft", toAdd[0].Content)
	require.Len(t, deltas, 1)
	assert.Equal(t, "final draft", deltas[0].Content)
}

func TestFilterStrictCandidates(t *testing.T) {
	topics := []model.TopicSpec{
		{Topic: "work", SubTopics: []model.SubTopicSpec{{Name: "role"}, {Name: "employer"}}},
	}
	candidates := []promptpack.ExtractedProfile{
		{Topic: "work", SubTopic: "role", Memo: "senior engineer"},
		{Topic: "work", SubTopic: "salary", Memo: "not a configured sub-topic"},
		{Topic: "diet", SubTopic: "allergies", Memo: "not a configured topic at all"},
	}

	out := filterStrictCandidates(candidates, topics)

	require.Len(t, out, 1)
	assert.Equal(t, "role", out[0].SubTopic)
}

func TestFilterStrictCandidates_NoTopicsAllowsNothing(t *testing.T) {
	out := filterStrictCandidates([]promptpack.ExtractedProfile{{Topic: "work", SubTopic: "role", Memo: "x"}}, nil)
	assert.Empty(t, out)
}

func TestFindSubTopicSpec_NormalizesKeys(t *testing.T) {
	topics := []model.TopicSpec{
		{Topic: "Basic Info", SubTopics: []model.SubTopicSpec{{Name: "Full Name", ValidateValue: true}}},
	}

	spec := findSubTopicSpec(topics, "basic_info", "full_name")
	assert.True(t, spec.ValidateValue)

	missing := findSubTopicSpec(topics, "other", "thing")
	assert.False(t, missing.ValidateValue)
}
