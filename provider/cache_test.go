package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chroniclekeeper/chronicle/provider"
	"github.com/chroniclekeeper/chronicle/provider/mock"
)

func TestCachedProviderServesRepeatEmbeds(t *testing.T) {
	inner := mock.New()
	cached, err := provider.NewCachedProvider(inner, 0)
	require.NoError(t, err)
	defer cached.Close()
	ctx := context.Background()

	first, err := cached.Embed(ctx, "m", "the dragon")
	require.NoError(t, err)
	cached.Wait()

	second, err := cached.Embed(ctx, "m", "the dragon")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.EmbedCalls, "second call should be a cache hit")
}

func TestCachedProviderKeyIncludesModel(t *testing.T) {
	inner := mock.New()
	cached, err := provider.NewCachedProvider(inner, 0)
	require.NoError(t, err)
	defer cached.Close()
	ctx := context.Background()

	_, err = cached.Embed(ctx, "model-a", "text")
	require.NoError(t, err)
	cached.Wait()
	_, err = cached.Embed(ctx, "model-b", "text")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.EmbedCalls)
}

func TestCachedProviderDoesNotCacheFailures(t *testing.T) {
	inner := mock.New()
	cached, err := provider.NewCachedProvider(inner, 0)
	require.NoError(t, err)
	defer cached.Close()
	ctx := context.Background()

	inner.Unavailable = true
	_, err = cached.Embed(ctx, "m", "text")
	assert.ErrorIs(t, err, provider.ErrUnavailable)

	inner.Unavailable = false
	vec, err := cached.Embed(ctx, "m", "text")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.Equal(t, 2, inner.EmbedCalls)
}

func TestCachedProviderPassesThroughChat(t *testing.T) {
	inner := mock.New()
	cached, err := provider.NewCachedProvider(inner, 0)
	require.NoError(t, err)
	defer cached.Close()

	inner.Enqueue("hello back")
	out, err := cached.Chat(context.Background(), provider.ChatRequest{
		Model:    "m",
		Messages: []provider.Message{provider.UserMessage("hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)
}

func TestMockEmbeddingsAreDeterministicUnitVectors(t *testing.T) {
	inner := mock.New()
	ctx := context.Background()

	a, err := inner.Embed(ctx, "m", "same text")
	require.NoError(t, err)
	b, err := inner.Embed(ctx, "m", "same text")
	require.NoError(t, err)
	c, err := inner.Embed(ctx, "m", "different text")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-4)
}
