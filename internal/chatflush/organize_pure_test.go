package chatflush

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/promptpack"
	"github.com/skorpland/powermemo/internal/storepg"
)

func TestDedupeBySubTopic_KeepsFirstOccurrence(t *testing.T) {
	in := []promptpack.OrganizedSubtopic{
		{SubTopic: "team_sports", Memo: "plays soccer"},
		{SubTopic: "team_sports", Memo: "also plays basketball"},
		{SubTopic: "music", Memo: "plays guitar"},
	}

	out := dedupeBySubTopic(in)

	require.Len(t, out, 2)
	assert.Equal(t, "plays soccer", out[0].Memo)
	assert.Equal(t, "music", out[1].SubTopic)
}

func TestBuildTopicStates_ReflectsPendingUpdatesAndAdds(t *testing.T) {
	existing := []model.Profile{
		{ID: "p1", Content: "old", Attributes: model.ProfileAttributes{Topic: "interest", SubTopic: "books"}},
	}
	revised := "new content"
	toUpdate := []storepg.ProfileUpdate{{ID: "p1", Content: &revised}}
	toAdd := []model.Profile{
		{Content: "plays chess", Attributes: model.ProfileAttributes{Topic: "interest", SubTopic: "games"}},
	}

	states := buildTopicStates(existing, toAdd, toUpdate)

	require.Contains(t, states, "interest")
	st := states["interest"]
	require.Len(t, st.subtopics, 2)
	assert.Equal(t, "new content", st.subtopics["books"].content, "pending update content should be reflected over the stale existing row")
	assert.Equal(t, "p1", st.subtopics["books"].id)
	assert.Equal(t, "", st.subtopics["games"].id, "a brand-new pending add has no profile id yet")
}

func TestRemoveFromPending_DropsMatchingKeyOnly(t *testing.T) {
	toAdd := []model.Profile{
		{Content: "a", Attributes: model.ProfileAttributes{Topic: "interest", SubTopic: "books"}},
		{Content: "b", Attributes: model.ProfileAttributes{Topic: "interest", SubTopic: "games"}},
	}

	removeFromPending("books", "interest", &toAdd)

	require.Len(t, toAdd, 1)
	assert.Equal(t, "games", toAdd[0].Attributes.SubTopic)
}

func TestRemoveUpdateByID_DropsMatchingIDOnly(t *testing.T) {
	a, b := "a", "b"
	toUpdate := []storepg.ProfileUpdate{
		{ID: "p1", Content: &a},
		{ID: "p2", Content: &b},
	}

	removeUpdateByID("p1", &toUpdate)

	require.Len(t, toUpdate, 1)
	assert.Equal(t, "p2", toUpdate[0].ID)
}

func TestRemoveUpdateByID_EmptyIDIsNoop(t *testing.T) {
	toUpdate := []storepg.ProfileUpdate{{ID: "p1"}}
	removeUpdateByID("", &toUpdate)
	assert.Len(t, toUpdate, 1)
}
