package llm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCounterCount(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	assert.Equal(t, 0, tc.Count(""))
	assert.Greater(t, tc.Count("hello world, this is a prompt"), 0)
}

func TestTokenCounterNilFallback(t *testing.T) {
	var tc *TokenCounter
	assert.Equal(t, 10, tc.Count(strings.Repeat("a", 40)))
}

func TestCountMessages(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	msgs := []ChatMessage{System("be brief"), User("hello there")}
	total := tc.CountMessages(msgs)
	assert.Equal(t, tc.Count("be brief")+tc.Count("hello there"), total)
}

func TestTruncateToBudget(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 100)

	kept := tc.TruncateToBudget(text, 1000000)
	assert.Equal(t, text, kept)

	trimmed := tc.TruncateToBudget(text, 50)
	assert.Less(t, len(trimmed), len(text))
	assert.True(t, strings.HasSuffix(trimmed, "..."))
	assert.LessOrEqual(t, tc.Count(trimmed), 60)
}

func TestTruncateToBudgetKeepsValidUTF8(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	text := strings.Repeat("héllo wörld ünïcode ", 200)
	for _, limit := range []int{1, 5, 17, 50, 123} {
		trimmed := tc.TruncateToBudget(text, limit)
		assert.True(t, utf8.ValidString(trimmed), "limit %d produced invalid UTF-8", limit)
	}
}
