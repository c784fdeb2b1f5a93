package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chroniclekeeper/chronicle/settings"
)

func TestLongTermAddDefaults(t *testing.T) {
	m := NewLongTermMemory(settings.NewMemStore())

	stored, err := m.Add(context.Background(), Entry{Content: "The party reached Ironhold"})
	require.NoError(t, err)

	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, EntryStoryBeat, stored.Type)
	assert.Equal(t, ImportanceMedium, stored.Importance)
	assert.False(t, stored.Timestamp.IsZero())
}

func TestEntryTypeAndImportanceValidation(t *testing.T) {
	for _, et := range []EntryType{EntryConversation, EntryStoryBeat, EntryQuestProgress,
		EntryRelationship, EntrySessionSummary, EntryWorldFact} {
		assert.True(t, ValidEntryType(et), string(et))
	}
	assert.False(t, ValidEntryType("player_action"))
	assert.False(t, ValidEntryType(""))

	for _, i := range []Importance{ImportanceLow, ImportanceMedium, ImportanceHigh} {
		assert.True(t, ValidImportance(i), string(i))
	}
	assert.False(t, ValidImportance("critical"))
}

func TestLongTermGetRecentNewestFirst(t *testing.T) {
	m := NewLongTermMemory(settings.NewMemStore())
	ctx := context.Background()
	base := time.Now()

	for i, content := range []string{"first", "second", "third"} {
		_, err := m.Add(ctx, Entry{Content: content, Timestamp: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}

	recent := m.GetRecent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Content)
	assert.Equal(t, "second", recent[1].Content)
}

func TestLongTermGetByTypeSkipsArchived(t *testing.T) {
	m := NewLongTermMemory(settings.NewMemStore())
	ctx := context.Background()

	_, err := m.Add(ctx, Entry{Content: "summary", Type: EntrySessionSummary})
	require.NoError(t, err)
	beat, err := m.Add(ctx, Entry{Content: "beat"})
	require.NoError(t, err)
	archived, err := m.Add(ctx, Entry{Content: "old beat"})
	require.NoError(t, err)
	require.NoError(t, m.Update(ctx, archived.ID, func(e *Entry) { e.Archived = true }))

	beats := m.GetByType(EntryStoryBeat)
	require.Len(t, beats, 1)
	assert.Equal(t, beat.ID, beats[0].ID)
}

func TestLongTermSearchRequiresKeywordMatch(t *testing.T) {
	m := NewLongTermMemory(settings.NewMemStore())
	ctx := context.Background()

	// High importance and fresh, but no keyword overlap. Importance and
	// recency alone top out at 0.3, which does not pass the cutoff.
	_, err := m.Add(ctx, Entry{Content: "unrelated lore", Importance: ImportanceHigh})
	require.NoError(t, err)

	assert.Empty(t, m.Search("dragon bridge"))
}

func TestLongTermSearchScoring(t *testing.T) {
	m := NewLongTermMemory(settings.NewMemStore())
	ctx := context.Background()

	_, err := m.Add(ctx, Entry{Content: "The dragon attacked the bridge", Importance: ImportanceHigh})
	require.NoError(t, err)
	_, err = m.Add(ctx, Entry{Content: "A dragon was sighted", Importance: ImportanceLow})
	require.NoError(t, err)
	_, err = m.Add(ctx, Entry{Content: "Nothing happened", Importance: ImportanceHigh})
	require.NoError(t, err)

	results := m.Search("dragon bridge")
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Content, "attacked")
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestLongTermArchiveSkipsHighImportance(t *testing.T) {
	m := NewLongTermMemory(settings.NewMemStore())
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -60)

	_, err := m.Add(ctx, Entry{Content: "old low", Importance: ImportanceLow, Timestamp: old})
	require.NoError(t, err)
	_, err = m.Add(ctx, Entry{Content: "old high", Importance: ImportanceHigh, Timestamp: old})
	require.NoError(t, err)
	_, err = m.Add(ctx, Entry{Content: "recent", Importance: ImportanceLow})
	require.NoError(t, err)

	n, err := m.Archive(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, e := range m.GetAll() {
		if e.Content == "old low" {
			assert.True(t, e.Archived)
		} else {
			assert.False(t, e.Archived)
		}
	}
}

func TestLongTermPruneImportanceDominatesAge(t *testing.T) {
	m := NewLongTermMemory(settings.NewMemStore())
	ctx := context.Background()
	now := time.Now()

	// The medium entry is older than the low one, but low importance is
	// always pruned first.
	older := Entry{Content: "medium old", Importance: ImportanceMedium, Timestamp: now.AddDate(0, 0, -90), Archived: true}
	newer := Entry{Content: "low new", Importance: ImportanceLow, Timestamp: now.AddDate(0, 0, -10), Archived: true}
	_, err := m.Add(ctx, older)
	require.NoError(t, err)
	_, err = m.Add(ctx, newer)
	require.NoError(t, err)

	n, err := m.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining := m.GetAll()
	require.Len(t, remaining, 1)
	assert.Equal(t, "medium old", remaining[0].Content)
}

func TestLongTermPruneNeverDropsHighImportance(t *testing.T) {
	m := NewLongTermMemory(settings.NewMemStore())
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -90)

	for i := 0; i < 3; i++ {
		_, err := m.Add(ctx, Entry{Content: "critical", Importance: ImportanceHigh, Timestamp: old, Archived: true})
		require.NoError(t, err)
	}

	n, err := m.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, m.Size())
}

func TestLongTermUpdateAndDelete(t *testing.T) {
	m := NewLongTermMemory(settings.NewMemStore())
	ctx := context.Background()

	stored, err := m.Add(ctx, Entry{Content: "draft"})
	require.NoError(t, err)

	require.NoError(t, m.Update(ctx, stored.ID, func(e *Entry) { e.Content = "final" }))
	got, ok := m.Get(stored.ID)
	require.True(t, ok)
	assert.Equal(t, "final", got.Content)

	require.NoError(t, m.Delete(ctx, stored.ID))
	_, ok = m.Get(stored.ID)
	assert.False(t, ok)

	assert.Error(t, m.Delete(ctx, "ltm_missing"))
}

func TestLongTermLoadRoundTrip(t *testing.T) {
	store := settings.NewMemStore()
	ctx := context.Background()

	m := NewLongTermMemory(store)
	_, err := m.Add(ctx, Entry{Content: "persisted", Importance: ImportanceHigh})
	require.NoError(t, err)

	reloaded := NewLongTermMemory(store)
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, 1, reloaded.Size())
	assert.Equal(t, ImportanceHigh, reloaded.GetAll()[0].Importance)
}
