// Package provider defines the language-model boundary used by the memory
// system: chat completion, plain completion, and text embedding.
//
// Every implementation classifies failures into a small taxonomy so call
// sites can make the degrade decision explicitly:
//   - ErrUnavailable: endpoint unreachable, timed out, or returned non-2xx.
//     Always recoverable; callers fall back (keyword search, skip
//     summarization) and never surface it to the end user mid-turn.
//   - ErrEmbeddingUnsupported: the provider has no embedding endpoint
//     (e.g. chat-only backends). Treated like unavailability by the
//     vector store.
//
// Implementations: ollama (OpenAI-compatible API), claude (Anthropic
// Messages, chat-only), mock (deterministic, for tests).
package provider

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the provider endpoint could not be reached or
// did not return a usable response. Wrapped by all transport failures.
var ErrUnavailable = errors.New("provider unavailable")

// ErrEmbeddingUnsupported indicates the provider cannot produce embeddings.
var ErrEmbeddingUnsupported = errors.New("provider does not support embeddings")

// Message is a single chat turn.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// ChatRequest holds parameters for a chat completion.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	// JSONMode asks the backend for a JSON-constrained response where
	// supported. Best effort: callers must still parse defensively.
	JSONMode bool
}

// GenerateRequest holds parameters for a plain (non-chat) completion.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Provider is the LM backend the memory system depends on.
// All methods honor ctx cancellation; implementations apply their own
// request timeouts on top.
type Provider interface {
	// Chat performs a chat completion and returns the response text.
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// Generate performs a plain completion and returns the response text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Embed converts text to an embedding vector using the given model.
	// Returns an error wrapping ErrUnavailable or ErrEmbeddingUnsupported
	// on failure; never returns an empty vector with a nil error.
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Recoverable reports whether err is a degraded-mode provider failure
// (unreachable or embedding-unsupported) rather than a programming error.
func Recoverable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrEmbeddingUnsupported)
}

// SystemMessage builds a system chat message.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user chat message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage builds an assistant chat message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}
