package llmgateway

import (
	"encoding/json"
	"strings"
)

// ExtractFirstCompleteJSON scans s with a brace stack and returns the first
// balanced `{...}` span that parses as a JSON object, ported from
// original_source's extract_first_complete_json (a permissive salvage for
// LLM json_mode output that sometimes wraps the object in prose or fences).
func ExtractFirstCompleteJSON(s string) (map[string]any, bool) {
	var stack []int
	start := -1

	for i, r := range s {
		switch r {
		case '{':
			stack = append(stack, i)
			if start == -1 {
				start = i
			}
		case '}':
			if len(stack) == 0 {
				continue
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				candidate := strings.ReplaceAll(s[start:i+1], "\n", "")
				var obj map[string]any
				if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
					return obj, true
				}
				start = -1
			}
		}
	}
	return nil, false
}
