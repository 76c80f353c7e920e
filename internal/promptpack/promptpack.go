// Package promptpack builds the stage prompts the chat-flush pipeline sends
// to the LLMGateway, in the project's configured language. Grounded on
// original_source/prompts/*.py; templates are re-expressed in the teacher's
// idiom rather than translated line-for-line.
package promptpack

import (
	"fmt"
	"strings"

	"github.com/skorpland/powermemo/internal/config"
	"github.com/skorpland/powermemo/internal/model"
)

// Pack renders every stage prompt for one language.
type Pack struct {
	lang model.Language
	sep  string
}

func New(lang model.Language, tabSeparator string) *Pack {
	if lang == "" {
		lang = model.LanguageEN
	}
	return &Pack{lang: lang, sep: tabSeparator}
}

func topicsBlock(topics []model.TopicSpec) string {
	var b strings.Builder
	for _, t := range topics {
		fmt.Fprintf(&b, "- %s: %s\n", t.Topic, t.Description)
		for _, st := range t.SubTopics {
			fmt.Fprintf(&b, "  - %s: %s\n", st.Name, st.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func eventTagsBlock(tags []model.EventTagSpec) string {
	var b strings.Builder
	for _, t := range tags {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// EntrySummary builds the Stage-1 prompt: summarize one raw chat blob into a
// dense entry suitable for profile extraction (spec §4.7 stage 1).
func (p *Pack) EntrySummary(chatText string) (system, user string) {
	if p.lang == model.LanguageZH {
		return entrySummarySystemZH, fmt.Sprintf(entrySummaryUserZH, chatText)
	}
	return entrySummarySystemEN, fmt.Sprintf(entrySummaryUserEN, chatText)
}

// ExtractProfile builds the Stage-2 prompt: extract candidate (topic,
// sub_topic, memo) triples from the summarized entry, against the
// configured topic taxonomy.
func (p *Pack) ExtractProfile(entryText string, topics []model.TopicSpec, strictMode bool) (system, user string) {
	tb := topicsBlock(topics)
	if p.lang == model.LanguageZH {
		return fmt.Sprintf(extractProfileSystemZH, tb, strictModeNoteZH(strictMode), p.sep), fmt.Sprintf(extractProfileUserZH, entryText)
	}
	return fmt.Sprintf(extractProfileSystemEN, tb, strictModeNoteEN(strictMode), p.sep), fmt.Sprintf(extractProfileUserEN, entryText)
}

// MergeProfile builds the Stage-3 prompt: decide how a new candidate memo
// interacts with the existing memo under the same (topic, sub_topic) key —
// APPEND, REVISE, or ABORT.
func (p *Pack) MergeProfile(existing, incoming, subTopicDescription string) (system, user string) {
	if p.lang == model.LanguageZH {
		return fmt.Sprintf(mergeProfileSystemZH, p.sep), fmt.Sprintf(mergeProfileUserZH, subTopicDescription, existing, incoming)
	}
	return fmt.Sprintf(mergeProfileSystemEN, p.sep), fmt.Sprintf(mergeProfileUserEN, subTopicDescription, existing, incoming)
}

// EventTagging builds the Stage-4 prompt: tag the event against the
// project's configured event_tags.
func (p *Pack) EventTagging(eventText string, tags []model.EventTagSpec) (system, user string) {
	tb := eventTagsBlock(tags)
	if p.lang == model.LanguageZH {
		return fmt.Sprintf(eventTaggingSystemZH, tb, p.sep), fmt.Sprintf(eventTaggingUserZH, eventText)
	}
	return fmt.Sprintf(eventTaggingSystemEN, tb, p.sep), fmt.Sprintf(eventTaggingUserEN, eventText)
}

// OrganizeProfile builds the Stage-5 prompt: reorganize a topic's
// sub-topics when they exceed max_profile_subtopics, merging the weakest
// ones together.
func (p *Pack) OrganizeProfile(topic string, memos []string, maxSubtopics int) (system, user string) {
	list := "- " + strings.Join(memos, "\n- ")
	if p.lang == model.LanguageZH {
		return fmt.Sprintf(organizeProfileSystemZH, maxSubtopics, p.sep), fmt.Sprintf(organizeProfileUserZH, topic, list)
	}
	return fmt.Sprintf(organizeProfileSystemEN, maxSubtopics, p.sep), fmt.Sprintf(organizeProfileUserEN, topic, list)
}

// ReSummary builds the Stage-6 prompt: compress an oversized memo back
// under max_pre_profile_token_size while preserving its facts.
func (p *Pack) ReSummary(topic, subTopic, memo string, maxTokens int) (system, user string) {
	if p.lang == model.LanguageZH {
		return fmt.Sprintf(reSummarySystemZH, maxTokens), fmt.Sprintf(reSummaryUserZH, topic, subTopic, memo)
	}
	return fmt.Sprintf(reSummarySystemEN, maxTokens), fmt.Sprintf(reSummaryUserEN, topic, subTopic, memo)
}

// PickRelatedProfiles builds the ContextAssembler prompt (spec §4.9 step 2):
// given a recent chat tail and the full profile list, return the indices of
// up to maxFilterNum relevant profiles.
func (p *Pack) PickRelatedProfiles(chatTail string, profiles []string, maxFilterNum int) (system, user string) {
	numbered := make([]string, len(profiles))
	for i, line := range profiles {
		numbered[i] = fmt.Sprintf("[%d] %s", i, line)
	}
	list := strings.Join(numbered, "\n")
	if p.lang == model.LanguageZH {
		return fmt.Sprintf(pickRelatedSystemZH, maxFilterNum), fmt.Sprintf(pickRelatedUserZH, chatTail, list)
	}
	return fmt.Sprintf(pickRelatedSystemEN, maxFilterNum), fmt.Sprintf(pickRelatedUserEN, chatTail, list)
}

// ContextWrapper wraps the assembled profile/event sections into the final
// <memory> block handed to the calling application (spec §4.9 step 6).
func (p *Pack) ContextWrapper(profileSection, eventSection string) string {
	if p.lang == model.LanguageZH {
		return fmt.Sprintf(contextWrapperZH, profileSection, eventSection)
	}
	return fmt.Sprintf(contextWrapperEN, profileSection, eventSection)
}

func strictModeNoteEN(strict bool) string {
	if strict {
		return "Only extract information that fits an existing sub-topic exactly; do not invent new sub-topics."
	}
	return "Prefer an existing sub-topic, but invent a new one when nothing fits."
}

func strictModeNoteZH(strict bool) string {
	if strict {
		return "只提取与现有子主题完全匹配的信息，不要创建新的子主题。"
	}
	return "优先使用现有子主题，但如果没有合适的，可以创建新的子主题。"
}

// ForProject resolves the language-specific Pack for a project's effective
// config (spec §4.10).
func ForProject(eff config.Effective, tabSeparator string) *Pack {
	return New(eff.Language, tabSeparator)
}
