package llmgateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFirstCompleteJSON_Plain(t *testing.T) {
	obj, ok := ExtractFirstCompleteJSON(`{"indices": [1, 2, 3]}`)
	assert.True(t, ok)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, obj["indices"])
}

func TestExtractFirstCompleteJSON_WrappedInProse(t *testing.T) {
	input := "Sure, here is the result:\n```json\n{\"action\": \"APPEND\", \"memo\": \"works remotely\"}\n```\nLet me know if you need anything else."
	obj, ok := ExtractFirstCompleteJSON(input)
	assert.True(t, ok)
	assert.Equal(t, "APPEND", obj["action"])
	assert.Equal(t, "works remotely", obj["memo"])
}

func TestExtractFirstCompleteJSON_NestedObject(t *testing.T) {
	obj, ok := ExtractFirstCompleteJSON(`prefix noise {"outer": {"inner": 42}} suffix noise`)
	assert.True(t, ok)
	inner, ok := obj["outer"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, 42.0, inner["inner"])
}

func TestExtractFirstCompleteJSON_SkipsMalformedThenFindsValid(t *testing.T) {
	input := `{not valid json} then later {"valid": true}`
	obj, ok := ExtractFirstCompleteJSON(input)
	assert.True(t, ok)
	assert.Equal(t, true, obj["valid"])
}

func TestExtractFirstCompleteJSON_NoObject(t *testing.T) {
	_, ok := ExtractFirstCompleteJSON("no braces here at all")
	assert.False(t, ok)
}

func TestExtractFirstCompleteJSON_UnbalancedBraces(t *testing.T) {
	_, ok := ExtractFirstCompleteJSON(`{"a": 1`)
	assert.False(t, ok)
}
