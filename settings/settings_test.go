package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreRoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, s.Set(ctx, "campaign", doc{Name: "Emberfall", Count: 3}))

	var got doc
	require.NoError(t, s.Get(ctx, "campaign", &got))
	assert.Equal(t, "Emberfall", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestMemStoreMissingKey(t *testing.T) {
	s := NewMemStore()
	var out map[string]string
	assert.ErrorIs(t, s.Get(context.Background(), "missing", &out), ErrNotFound)
}

func TestMemStoreOverwrite(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "first"))
	require.NoError(t, s.Set(ctx, "k", "second"))

	var got string
	require.NoError(t, s.Get(ctx, "k", &got))
	assert.Equal(t, "second", got)
}

func TestMemStoreDelete(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", 1))
	require.NoError(t, s.Delete(ctx, "k"))

	var got int
	assert.ErrorIs(t, s.Get(ctx, "k", &got), ErrNotFound)

	// Deleting a missing key is not an error.
	require.NoError(t, s.Delete(ctx, "k"))
}
