package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chroniclekeeper/chronicle/settings"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	type doc struct {
		Names []string `json:"names"`
	}
	require.NoError(t, s.Set(ctx, "entities", doc{Names: []string{"Borin", "Mira"}}))

	var got doc
	require.NoError(t, s.Get(ctx, "entities", &got))
	assert.Equal(t, []string{"Borin", "Mira"}, got.Names)
}

func TestSQLiteMissingKey(t *testing.T) {
	s := newTestStore(t)
	var out []string
	assert.ErrorIs(t, s.Get(context.Background(), "missing", &out), settings.ErrNotFound)
}

func TestSQLiteUpsertAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "first"))
	require.NoError(t, s.Set(ctx, "k", "second"))

	var got string
	require.NoError(t, s.Get(ctx, "k", &got))
	assert.Equal(t, "second", got)

	require.NoError(t, s.Delete(ctx, "k"))
	assert.ErrorIs(t, s.Get(ctx, "k", &got), settings.ErrNotFound)
}

func TestSQLitePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "campaign", "Emberfall"))
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	var got string
	require.NoError(t, reopened.Get(ctx, "campaign", &got))
	assert.Equal(t, "Emberfall", got)
}
