package adapter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// ClaudeClient implements LLM via the Anthropic API. Claude has no
// native response-schema mode, so the schema is rendered into the
// system prompt and the reply is trimmed down to its JSON body.
type ClaudeClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

type ClaudeOption func(*ClaudeClient)

func WithClaudeModel(model string) ClaudeOption {
	return func(c *ClaudeClient) {
		c.model = anthropic.Model(model)
	}
}

func WithMaxTokens(n int64) ClaudeOption {
	return func(c *ClaudeClient) {
		c.maxTokens = n
	}
}

// NewClaude creates a new Anthropic API client
func NewClaude(apiKey string, opts ...ClaudeOption) *ClaudeClient {
	c := &ClaudeClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.ModelClaudeSonnet4_20250514,
		maxTokens: 4096,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GenerateJSON asks Claude for JSON output matching schema and returns
// the raw JSON text.
func (c *ClaudeClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema *genai.Schema) (string, error) {
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal response schema")
	}

	system := systemPrompt +
		"\n\nRespond with a single JSON value matching this schema, with no surrounding text:\n" +
		string(schemaJSON)

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to call anthropic messages API")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return stripCodeFence(sb.String()), nil
}

// stripCodeFence removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
