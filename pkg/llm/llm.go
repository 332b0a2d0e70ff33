// Package llm defines the language-model capability the core depends on and
// provides Anthropic, OpenAI and Gemini backed implementations plus a
// scripted mock for tests.
package llm

import (
	"context"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in a chat completion request.
type ChatMessage struct {
	Role    Role
	Content string
}

// Options tunes a single completion request.
type Options struct {
	MaxTokens   int
	Temperature float32
}

// Client is the language-model capability interface. Implementations must
// honor ctx cancellation and classify failures via *Error so callers can
// distinguish retryable from fatal conditions.
type Client interface {
	CompleteChat(ctx context.Context, messages []ChatMessage, opts Options) (string, error)
}

// System creates a system-role message.
func System(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// User creates a user-role message.
func User(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// Assistant creates an assistant-role message.
func Assistant(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// splitSystem separates system messages from the conversational turns, which
// several providers accept only as a dedicated parameter.
func splitSystem(messages []ChatMessage) (system string, rest []ChatMessage) {
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}
