package llm

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates prompt sizes so agents can stay inside a model's
// context window. All supported providers are approximated with the GPT-4
// encoding, which is close enough for budgeting.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter using the GPT-4 encoding.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the token count of text, falling back to a 4-chars-per-token
// estimate if the codec fails.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountMessages returns the total token count of a chat request.
func (tc *TokenCounter) CountMessages(messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += tc.Count(msg.Content)
	}
	return total
}

// TruncateToBudget trims text so it fits within limit tokens. Truncation is
// proportional by characters, not exact token boundaries.
func (tc *TokenCounter) TruncateToBudget(text string, limit int) string {
	current := tc.Count(text)
	if current <= limit {
		return text
	}
	ratio := float64(limit) / float64(current)
	charLimit := int(float64(len(text)) * ratio * 0.9)
	if charLimit >= len(text) {
		return text
	}
	if charLimit < 0 {
		charLimit = 0
	}
	// Back off to a rune boundary so the cut never produces invalid UTF-8.
	for charLimit > 0 && !utf8.RuneStart(text[charLimit]) {
		charLimit--
	}
	return text[:charLimit] + "..."
}
