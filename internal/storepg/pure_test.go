package storepg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/tokencount"
)

func TestEmbeddingString(t *testing.T) {
	data := model.EventData{
		EventTip: "user switched to a new job",
		ProfileDelta: []model.ProfileDelta{
			{Content: "works at Acme", Attributes: model.ProfileAttributes{Topic: "work", SubTopic: "employer"}},
		},
		EventTags: []model.EventTag{
			{Tag: "mood", Value: "excited"},
		},
	}

	got := EmbeddingString(data)

	assert.Equal(t, "user switched to a new job\n- work::employer: works at Acme\n- mood: excited", got)
}

func TestEmbeddingString_TipOnly(t *testing.T) {
	got := EmbeddingString(model.EventData{EventTip: "just a tip"})
	assert.Equal(t, "just a tip", got)
}

func TestCutEventsByTokenBudget(t *testing.T) {
	counter, err := tokencount.New()
	require.NoError(t, err)

	events := []model.Event{
		{EventData: model.EventData{EventTip: "alpha beta gamma delta epsilon zeta eta theta"}},
		{EventData: model.EventData{EventTip: "iota kappa lambda mu nu xi omicron pi"}},
		{EventData: model.EventData{EventTip: "rho sigma tau upsilon phi chi psi omega"}},
	}

	full := counter.Count(EmbeddingString(events[0].EventData))

	out := cutEventsByTokenBudget(counter, events, full)
	assert.Len(t, out, 1, "budget exactly covering the first event keeps only that event")

	outAll := cutEventsByTokenBudget(counter, events, 10_000)
	assert.Len(t, outAll, 3, "a generous budget keeps every event")

	outNone := cutEventsByTokenBudget(counter, events, 0)
	assert.Empty(t, outNone, "a zero budget keeps nothing once the first event overflows it")
}

func TestCutEventsByTokenBudget_EmptyInput(t *testing.T) {
	counter, err := tokencount.New()
	require.NoError(t, err)

	out := cutEventsByTokenBudget(counter, nil, 100)
	assert.Empty(t, out)
}

func profileWith(topic, subTopic, content string) model.Profile {
	return model.Profile{
		Content:    content,
		Attributes: model.ProfileAttributes{Topic: topic, SubTopic: subTopic},
	}
}

func TestTruncate_PreferTopics(t *testing.T) {
	profiles := []model.Profile{
		profileWith("hobbies", "sports", "plays tennis"),
		profileWith("work", "role", "senior engineer"),
		profileWith("diet", "allergies", "peanut allergy"),
	}

	out := Truncate(nil, profiles, TruncateOptions{PreferTopics: []string{"diet", "work"}})

	require.Len(t, out, 3)
	assert.Equal(t, "diet", out[0].Attributes.Topic)
	assert.Equal(t, "work", out[1].Attributes.Topic)
	assert.Equal(t, "hobbies", out[2].Attributes.Topic)
}

func TestTruncate_OnlyTopics(t *testing.T) {
	profiles := []model.Profile{
		profileWith("hobbies", "sports", "plays tennis"),
		profileWith("work", "role", "senior engineer"),
		profileWith("diet", "allergies", "peanut allergy"),
	}

	out := Truncate(nil, profiles, TruncateOptions{OnlyTopics: []string{"Work"}})

	require.Len(t, out, 1)
	assert.Equal(t, "work", out[0].Attributes.Topic)
}

func TestTruncate_TopicLimits(t *testing.T) {
	profiles := []model.Profile{
		profileWith("hobbies", "sports", "plays tennis"),
		profileWith("hobbies", "music", "plays guitar"),
		profileWith("hobbies", "travel", "loves hiking"),
		profileWith("work", "role", "senior engineer"),
	}

	out := Truncate(nil, profiles, TruncateOptions{TopicLimits: map[string]int{"hobbies": 2}})

	hobbies := 0
	for _, p := range out {
		if p.Attributes.Topic == "hobbies" {
			hobbies++
		}
	}
	assert.Equal(t, 2, hobbies)
	assert.Len(t, out, 3)
}

func TestTruncate_TopK(t *testing.T) {
	profiles := []model.Profile{
		profileWith("a", "a", "one"),
		profileWith("b", "b", "two"),
		profileWith("c", "c", "three"),
	}

	out := Truncate(nil, profiles, TruncateOptions{TopK: 2})
	assert.Len(t, out, 2)
}

func TestTruncate_TokenBudget(t *testing.T) {
	counter, err := tokencount.New()
	require.NoError(t, err)

	profiles := []model.Profile{
		profileWith("work", "role", "alpha beta gamma delta epsilon zeta eta theta"),
		profileWith("work", "team", "iota kappa lambda mu nu xi omicron pi"),
	}
	line := profiles[0].Attributes.Topic + "::" + profiles[0].Attributes.SubTopic + ": " + profiles[0].Content
	full := counter.Count(line)

	out := Truncate(counter, profiles, TruncateOptions{MaxTokenSize: full})
	assert.Len(t, out, 1)
}

func TestTruncate_DoesNotMutateInput(t *testing.T) {
	profiles := []model.Profile{
		profileWith("hobbies", "sports", "plays tennis"),
		profileWith("work", "role", "senior engineer"),
	}
	original := append([]model.Profile(nil), profiles...)

	_ = Truncate(nil, profiles, TruncateOptions{PreferTopics: []string{"work"}})

	assert.Equal(t, original, profiles, "Truncate must not reorder the caller's backing array")
}
