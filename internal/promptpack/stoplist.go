package promptpack

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// excludeProfileValues are memo values that carry no information ("none",
// "not mentioned", their Chinese equivalents, ...). Ported from
// original_source's EXCLUDE_PROFILE_VALUES.
var excludeProfileValues = []string{
	"无", "未提及", "不清楚", "用户未提及", "对话未提及", "未知", "不详",
	"没有提到", "没有说明", "无法确定", "无相关内容", "未明确提及", "无明确信息", "无符合信息",
	"none", "unknown", "not mentioned", "not mentioned by user",
	"not mentioned in the conversation", "unclear", "unspecified",
	"not specified", "not determined", "no information", "n/a",
	"no related content", "no related information", "no matched information",
}

// fuzzyCutoff mirrors difflib.get_close_matches' default cutoff of 0.6.
const fuzzyCutoff = 0.6

// IsMeaninglessMemo reports whether memo is close enough to one of the
// stoplist phrases to be dropped rather than stored (spec: profile memos
// with no information are never persisted). Closeness is 1 - normalized
// Levenshtein distance, matching difflib's ratio-based cutoff semantics
// closely enough for short phrases.
func IsMeaninglessMemo(memo string) bool {
	m := strings.ToLower(strings.TrimSpace(memo))
	if m == "" {
		return true
	}
	for _, candidate := range excludeProfileValues {
		if similarityRatio(m, candidate) >= fuzzyCutoff {
			return true
		}
	}
	return false
}

func similarityRatio(a, b string) float64 {
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}
