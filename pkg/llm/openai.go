package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements Client against the OpenAI Chat Completions API.
type OpenAIClient struct {
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAIClient creates an OpenAI-backed client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModel(model),
	}
}

// CompleteChat implements Client.
func (c *OpenAIClient) CompleteChat(ctx context.Context, messages []ChatMessage, opts Options) (string, error) {
	if len(messages) == 0 {
		return "", NewError(KindProvider, "message list cannot be empty")
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(float64(opts.Temperature))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err, extractStatusCode(err.Error()))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", NewError(KindProvider, "empty response from OpenAI API")
	}

	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", NewError(KindProvider, "no text content in OpenAI response")
	}
	return text, nil
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// String renders the model for logging.
func (c *OpenAIClient) String() string {
	return fmt.Sprintf("openai(%s)", c.model)
}
