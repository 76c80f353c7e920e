// Package tokencount provides the single deterministic tokenizer used for
// both buffer size accounting and prompt budget enforcement (spec §4.2: "the
// exact encoder is a replaceable dependency, but it must be consistent across
// size accounting and budget enforcement").
package tokencount

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with a single, process-wide BPE codec.
type Counter struct {
	codec tokenizer.Codec
}

var (
	defaultOnce    sync.Once
	defaultCounter *Counter
	defaultErr     error
)

// Default returns a process-wide Counter built on the GPT-4 encoding. It is
// lazily initialized once and reused everywhere so all components agree on
// what a "token" is.
func Default() (*Counter, error) {
	defaultOnce.Do(func() {
		defaultCounter, defaultErr = New()
	})
	return defaultCounter, defaultErr
}

// New builds a fresh Counter. Most callers should use Default.
func New() (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, err
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in s. On codec failure it falls back to
// a conservative chars/4 heuristic rather than failing the caller, since
// buffer/budget accounting must always produce a number.
func (c *Counter) Count(s string) int {
	if s == "" {
		return 0
	}
	if c == nil || c.codec == nil {
		return len(s)/4 + 1
	}
	n, err := c.codec.Count(s)
	if err != nil {
		return len(s)/4 + 1
	}
	return n
}

// Truncate returns the prefix of s whose token count is <= max, decoding
// back through the codec so multi-byte boundaries are respected.
func (c *Counter) Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if c == nil || c.codec == nil {
		limit := max * 4
		if limit >= len(s) {
			return s
		}
		return s[:limit]
	}
	ids, _, err := c.codec.Encode(s)
	if err != nil || len(ids) <= max {
		return s
	}
	out, err := c.codec.Decode(ids[:max])
	if err != nil {
		return s
	}
	return out
}

// CountMessages sums token counts across a "{role}: {content}" rendering of
// each message, the same shape PromptPack lines and ContextAssembler
// renderings use for budget accounting.
func (c *Counter) CountMessages(lines []string) int {
	total := 0
	for _, l := range lines {
		total += c.Count(l)
	}
	return total
}
