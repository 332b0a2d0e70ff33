package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient implements Client against the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// CompleteChat implements Client.
func (c *GeminiClient) CompleteChat(ctx context.Context, messages []ChatMessage, opts Options) (string, error) {
	if len(messages) == 0 {
		return "", NewError(KindProvider, "message list cannot be empty")
	}

	system, turns := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	if len(contents) == 0 {
		return "", NewError(KindProvider, "must have at least one non-system message")
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.Temperature > 0 {
		temp := opts.Temperature
		cfg.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", classify(err, extractStatusCode(err.Error()))
	}
	if resp == nil {
		return "", NewError(KindProvider, "empty response from Gemini API")
	}

	text := resp.Text()
	if text == "" {
		return "", NewError(KindProvider, "no text content in Gemini response")
	}
	return text, nil
}

// String renders the model for logging.
func (c *GeminiClient) String() string {
	return fmt.Sprintf("gemini(%s)", c.model)
}
