// Package claude implements the provider boundary over the Anthropic
// Messages API. It is chat-only: Embed reports
// provider.ErrEmbeddingUnsupported, so a memory system wired to this
// backend runs with keyword search instead of semantic search.
package claude

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chroniclekeeper/chronicle/provider"
)

// Config holds client configuration.
type Config struct {
	APIKey string

	// Timeout bounds each request. Default: 120s.
	Timeout time.Duration
}

// Client talks to the Anthropic Messages API.
type Client struct {
	api     anthropic.Client
	timeout time.Duration
}

// New creates a Client from cfg.
func New(cfg *Config) *Client {
	timeout := 120 * time.Second
	if cfg != nil && cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	var opts []option.RequestOption
	if cfg != nil && cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &Client{
		api:     anthropic.NewClient(opts...),
		timeout: timeout,
	}
}

// Chat performs a chat completion.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	// Anthropic carries the system prompt out of band.
	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			params.Messages = append(params.Messages,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("messages: %w: %v", provider.ErrUnavailable, err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// Generate performs a completion by wrapping the prompt in a single user
// message. The Messages API has no plain completion endpoint.
func (c *Client) Generate(ctx context.Context, req provider.GenerateRequest) (string, error) {
	return c.Chat(ctx, provider.ChatRequest{
		Model:       req.Model,
		Messages:    []provider.Message{provider.UserMessage(req.Prompt)},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
}

// Embed is not supported by the Anthropic API.
func (c *Client) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, provider.ErrEmbeddingUnsupported
}
