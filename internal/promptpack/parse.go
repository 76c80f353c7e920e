package promptpack

import (
	"strings"

	"github.com/skorpland/powermemo/internal/model"
)

// MergeAction is the parsed result of a Stage-3 merge decision.
type MergeAction struct {
	Action string // APPEND | REVISE | ABORT
	Memo   string
}

// ParseMergeAction parses the first "- {ACTION}{sep}{memo}" line of a merge
// response, mirroring original_source's parse_string_into_merge_action.
func ParseMergeAction(response, sep string) (MergeAction, bool) {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		parts := strings.Split(line[2:], sep)
		if len(parts) != 2 {
			return MergeAction{}, false
		}
		return MergeAction{
			Action: strings.ToUpper(strings.TrimSpace(parts[0])),
			Memo:   strings.TrimSpace(parts[1]),
		}, true
	}
	return MergeAction{}, false
}

// ExtractedProfile is one candidate (topic, sub_topic, memo) triple parsed
// from a Stage-2 extraction response.
type ExtractedProfile struct {
	Topic    string
	SubTopic string
	Memo     string
}

// ParseExtractedProfiles parses every "- {topic}{sep}{sub_topic}{sep}{memo}"
// line, normalizing topic keys and dropping meaningless memos, mirroring
// original_source's parse_string_into_profiles.
func ParseExtractedProfiles(response, sep string) []ExtractedProfile {
	var out []ExtractedProfile
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		parts := strings.Split(line[2:], sep)
		if len(parts) != 3 {
			continue
		}
		memo := strings.TrimSpace(parts[2])
		if IsMeaninglessMemo(memo) {
			continue
		}
		out = append(out, ExtractedProfile{
			Topic:    model.NormalizeTopic(parts[0]),
			SubTopic: model.NormalizeTopic(parts[1]),
			Memo:     memo,
		})
	}
	return out
}

// OrganizedSubtopic is one surviving sub-topic from a Stage-5 organize response.
type OrganizedSubtopic struct {
	SubTopic string
	Memo     string
}

// ParseOrganizedSubtopics parses "- {sub_topic}{sep}{memo}" lines, mirroring
// original_source's parse_string_into_subtopics.
func ParseOrganizedSubtopics(response, sep string) []OrganizedSubtopic {
	var out []OrganizedSubtopic
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		parts := strings.Split(line[2:], sep)
		if len(parts) != 2 {
			continue
		}
		memo := strings.TrimSpace(parts[1])
		if IsMeaninglessMemo(memo) {
			continue
		}
		out = append(out, OrganizedSubtopic{
			SubTopic: model.NormalizeTopic(parts[0]),
			Memo:     memo,
		})
	}
	return out
}

// ParseEventTags parses "- {tag}{sep}{value}" lines from a Stage-4 tagging response.
func ParseEventTags(response, sep string) []model.EventTag {
	var out []model.EventTag
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		parts := strings.Split(line[2:], sep)
		if len(parts) != 2 {
			continue
		}
		out = append(out, model.EventTag{
			Tag:   strings.TrimSpace(parts[0]),
			Value: strings.TrimSpace(parts[1]),
		})
	}
	return out
}
