package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicClient creates a Claude-backed client.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// CompleteChat implements Client.
func (c *AnthropicClient) CompleteChat(ctx context.Context, messages []ChatMessage, opts Options) (string, error) {
	if len(messages) == 0 {
		return "", NewError(KindProvider, "message list cannot be empty")
	}

	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return "", NewError(KindProvider, "must have at least one non-system message")
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(opts.MaxTokens),
		Messages:  toAnthropicMessages(turns),
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(opts.Temperature))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system, Type: "text"}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err, extractStatusCode(err.Error()))
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", NewError(KindProvider, "empty response from Anthropic API")
	}

	var text string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return "", NewError(KindProvider, "no text content in Anthropic response")
	}
	return text, nil
}

func toAnthropicMessages(turns []ChatMessage) []anthropic.MessageParam {
	// The Messages API requires user/assistant alternation; consecutive
	// same-role turns are merged.
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		role := anthropic.MessageParamRoleUser
		if msg.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, anthropic.NewTextBlock(msg.Content))
			continue
		}
		out = append(out, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}
	return out
}

var statusCodePattern = regexp.MustCompile(`\b([45][0-9]{2})\b`)

// extractStatusCode pulls an HTTP status code out of an SDK error message.
// Returns 0 when no code is present.
func extractStatusCode(errText string) int {
	match := statusCodePattern.FindStringSubmatch(errText)
	if match == nil {
		return 0
	}
	code, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return code
}

// String renders the model for logging.
func (c *AnthropicClient) String() string {
	return fmt.Sprintf("anthropic(%s)", c.model)
}
