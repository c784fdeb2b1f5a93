// Package ollama implements the provider boundary over any
// OpenAI-compatible endpoint. The default configuration targets a local
// Ollama server, which is the backend the game-master assistant ships
// with; pointing BaseURL elsewhere works for hosted OpenAI-style APIs.
package ollama

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chroniclekeeper/chronicle/provider"
)

// Config holds client configuration.
type Config struct {
	// BaseURL of the OpenAI-compatible API. Default: local Ollama.
	BaseURL string

	// APIKey is sent as a bearer token. Ollama ignores it; hosted
	// endpoints require it.
	APIKey string

	// Timeout bounds each request. Default: 120s.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults for a local Ollama server.
var DefaultConfig = &Config{
	BaseURL: "http://localhost:11434/v1",
	Timeout: 120 * time.Second,
}

// Client talks to an OpenAI-compatible chat/completions/embeddings API.
type Client struct {
	api     *openai.Client
	timeout time.Duration
}

// New creates a Client from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultConfig.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig.Timeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = newHTTPClient()

	return &Client{
		api:     openai.NewClientWithConfig(clientConfig),
		timeout: timeout,
	}
}

// Chat performs a chat completion.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    convertMessages(req.Messages),
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w: %v", provider.ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: %w: empty response", provider.ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// Generate performs a plain completion.
func (c *Client) Generate(ctx context.Context, req provider.GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("completion: %w: %v", provider.ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: %w: empty response", provider.ErrUnavailable)
	}
	return resp.Choices[0].Text, nil
}

// Embed converts text to an embedding vector.
func (c *Client) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w: %v", provider.ErrUnavailable, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed: %w: empty embedding", provider.ErrUnavailable)
	}
	return resp.Data[0].Embedding, nil
}

// Ping checks whether the endpoint is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("ping: %w: %v", provider.ErrUnavailable, err)
	}
	return nil
}

func convertMessages(messages []provider.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := m.Role
		switch role {
		case "system", "user", "assistant":
		default:
			role = openai.ChatMessageRoleUser
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
