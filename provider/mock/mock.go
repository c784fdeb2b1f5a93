// Package mock provides a deterministic provider for tests: scripted
// chat responses and hash-seeded embeddings, no network.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/chroniclekeeper/chronicle/provider"
)

// Provider is a test double for the LM boundary.
//
// Chat and Generate pop queued responses (falling back to a fixed string),
// Embed generates deterministic unit vectors from a text hash. Toggling
// Unavailable makes every call fail with provider.ErrUnavailable, which is
// how tests exercise the degraded paths.
type Provider struct {
	mu sync.Mutex

	// Unavailable makes all calls fail with provider.ErrUnavailable.
	Unavailable bool

	// NoEmbeddings makes Embed fail with provider.ErrEmbeddingUnsupported.
	NoEmbeddings bool

	responses []string
	dims      int

	ChatCalls     int
	GenerateCalls int
	EmbedCalls    int

	LastChat     provider.ChatRequest
	LastGenerate provider.GenerateRequest
}

// New creates a mock provider with 384-dimensional embeddings.
func New() *Provider {
	return &Provider{dims: 384}
}

// Enqueue appends scripted responses consumed by Chat and Generate in order.
func (p *Provider) Enqueue(responses ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
}

func (p *Provider) next() string {
	if len(p.responses) == 0 {
		return "mock response"
	}
	r := p.responses[0]
	p.responses = p.responses[1:]
	return r
}

// Chat pops the next scripted response.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ChatCalls++
	p.LastChat = req
	if p.Unavailable {
		return "", provider.ErrUnavailable
	}
	return p.next(), nil
}

// Generate pops the next scripted response.
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls++
	p.LastGenerate = req
	if p.Unavailable {
		return "", provider.ErrUnavailable
	}
	return p.next(), nil
}

// Embed returns a deterministic unit vector derived from the text hash.
// Identical text always embeds to the identical vector, so similarity
// ranking is stable across test runs.
func (p *Provider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls++
	if p.Unavailable {
		return nil, provider.ErrUnavailable
	}
	if p.NoEmbeddings {
		return nil, provider.ErrEmbeddingUnsupported
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, p.dims)
	for i := 0; i < p.dims; i++ {
		// Linear congruential generator keyed by the text hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
