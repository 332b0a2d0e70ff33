package llm

import "context"

// BudgetClient enforces a prompt token budget before forwarding a request.
// Oversized requests are trimmed by truncating the largest message rather
// than failing, so a huge diff degrades instead of aborting the workflow.
type BudgetClient struct {
	inner   Client
	counter *TokenCounter
	limit   int
}

// NewBudgetClient wraps inner with a token budget. A non-positive limit
// disables trimming.
func NewBudgetClient(inner Client, counter *TokenCounter, limit int) *BudgetClient {
	return &BudgetClient{inner: inner, counter: counter, limit: limit}
}

// CompleteChat implements Client.
func (c *BudgetClient) CompleteChat(ctx context.Context, messages []ChatMessage, opts Options) (string, error) {
	if c.limit > 0 && c.counter.CountMessages(messages) > c.limit {
		messages = c.trim(messages)
	}
	return c.inner.CompleteChat(ctx, messages, opts)
}

// trim truncates the largest message until the request fits the budget.
func (c *BudgetClient) trim(messages []ChatMessage) []ChatMessage {
	trimmed := make([]ChatMessage, len(messages))
	copy(trimmed, messages)

	overshoot := c.counter.CountMessages(trimmed) - c.limit
	largest := 0
	for i := range trimmed {
		if len(trimmed[i].Content) > len(trimmed[largest].Content) {
			largest = i
		}
	}
	budget := c.counter.Count(trimmed[largest].Content) - overshoot
	if budget < 0 {
		budget = 0
	}
	trimmed[largest].Content = c.counter.TruncateToBudget(trimmed[largest].Content, budget)
	return trimmed
}
