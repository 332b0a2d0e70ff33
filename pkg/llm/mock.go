package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a scripted Client for tests and dry runs. Responses are
// matched against the concatenated prompt text by substring, falling back to
// a FIFO script when no rule matches.
type MockClient struct {
	mu       sync.Mutex
	rules    []mockRule
	script   []string
	scriptAt int
	err      error

	// Requests records every request for assertions.
	Requests [][]ChatMessage
}

type mockRule struct {
	substring string
	response  string
}

// NewMockClient creates an empty mock. With no rules or script configured it
// answers every request with "ok".
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Respond registers a response returned when the prompt contains substring.
func (m *MockClient) Respond(substring, response string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{substring: substring, response: response})
	return m
}

// Script appends responses returned in order for unmatched prompts.
func (m *MockClient) Script(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
	return m
}

// Fail makes every subsequent request return err.
func (m *MockClient) Fail(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// CompleteChat implements Client.
func (m *MockClient) CompleteChat(_ context.Context, messages []ChatMessage, _ Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recorded := make([]ChatMessage, len(messages))
	copy(recorded, messages)
	m.Requests = append(m.Requests, recorded)

	if m.err != nil {
		return "", m.err
	}

	var prompt strings.Builder
	for _, msg := range messages {
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n")
	}
	for _, rule := range m.rules {
		if strings.Contains(prompt.String(), rule.substring) {
			return rule.response, nil
		}
	}

	if m.scriptAt < len(m.script) {
		resp := m.script[m.scriptAt]
		m.scriptAt++
		return resp, nil
	}
	return "ok", nil
}
