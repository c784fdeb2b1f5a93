package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chroniclekeeper/chronicle/settings"
)

func TestEntityUpsertCreates(t *testing.T) {
	s := NewEntityStore(settings.NewMemStore())

	stored, err := s.Upsert(context.Background(), Entity{
		Name:        "Borin",
		Kind:        KindNPC,
		Description: "A gruff dwarven blacksmith",
		NPC:         &NPCData{Location: "Ironhold"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Equal(t, 1, s.Size())
}

func TestEntityUpsertMergesByName(t *testing.T) {
	s := NewEntityStore(settings.NewMemStore())
	ctx := context.Background()

	first, err := s.Upsert(ctx, Entity{
		Name: "Borin",
		Kind: KindNPC,
		NPC:  &NPCData{Personality: "gruff", Location: "Ironhold"},
	})
	require.NoError(t, err)

	// Case-insensitive name match merges into the same record.
	merged, err := s.Upsert(ctx, Entity{
		Name:  "borin",
		Kind:  KindNPC,
		Notes: []string{"owes the party a favor"},
		NPC:   &NPCData{Motivation: "protect the forge"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, first.CreatedAt, merged.CreatedAt)
	assert.Equal(t, "gruff", merged.NPC.Personality)
	assert.Equal(t, "protect the forge", merged.NPC.Motivation)
	assert.Equal(t, "Ironhold", merged.NPC.Location)
	require.Len(t, merged.Notes, 1)
	assert.Equal(t, 1, s.Size())
}

func TestEntityUpsertRejectsUnknownKind(t *testing.T) {
	s := NewEntityStore(settings.NewMemStore())

	_, err := s.Upsert(context.Background(), Entity{Name: "Thing", Kind: "monsters"})
	assert.ErrorIs(t, err, ErrInvalidEntityType)
}

func TestEntitySearchRanking(t *testing.T) {
	s := NewEntityStore(settings.NewMemStore())
	ctx := context.Background()

	_, err := s.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC, Description: "A gruff dwarven blacksmith"})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Entity{Name: "Ironhold", Kind: KindLocation, Description: "Mountain fortress where Borin lives"})
	require.NoError(t, err)

	results := s.Search("who is Borin")
	require.NotEmpty(t, results)
	assert.Equal(t, "Borin", results[0].Name, "name match in query should outrank description match")

	assert.Empty(t, s.Search("unrelated"))
}

func TestEntitySearchMatchesKindSpecificFields(t *testing.T) {
	s := NewEntityStore(settings.NewMemStore())
	ctx := context.Background()

	_, err := s.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC, NPC: &NPCData{Personality: "gruff and suspicious"}})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Entity{Name: "Iron Circle", Kind: KindFaction, Faction: &FactionData{Goals: []string{"overthrow the throne"}}})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Entity{Name: "Ironhold", Kind: KindLocation, Location: &LocationData{Features: []string{"ancient forge"}}})
	require.NoError(t, err)

	byPersonality := s.Search("gruff")
	require.Len(t, byPersonality, 1)
	assert.Equal(t, "Borin", byPersonality[0].Name)

	byGoal := s.Search("overthrow")
	require.Len(t, byGoal, 1)
	assert.Equal(t, "Iron Circle", byGoal[0].Name)

	byFeature := s.Search("ancient forge")
	require.Len(t, byFeature, 1)
	assert.Equal(t, "Ironhold", byFeature[0].Name)

	// A match found only through these fields carries no score weight
	// but is still returned.
	assert.Zero(t, byGoal[0].Score)
}

func TestEntityRelationshipUpsert(t *testing.T) {
	s := NewEntityStore(settings.NewMemStore())
	ctx := context.Background()

	_, err := s.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC})
	require.NoError(t, err)

	require.NoError(t, s.UpdateRelationship(ctx, KindNPC, "Borin", "npcs_1", "rival"))
	require.NoError(t, s.UpdateRelationship(ctx, KindNPC, "Borin", "npcs_1", "ally"))

	got, ok := s.Get(KindNPC, "Borin")
	require.True(t, ok)
	require.Len(t, got.NPC.Relationships, 1, "same target should overwrite, not duplicate")
	assert.Equal(t, "ally", got.NPC.Relationships[0].Relationship)

	assert.Error(t, s.UpdateRelationship(ctx, KindItem, "sword", "npcs_1", "owned by"))
}

func TestEntityLocationQueriesTolerateDanglingRefs(t *testing.T) {
	s := NewEntityStore(settings.NewMemStore())
	ctx := context.Background()

	_, err := s.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC, NPC: &NPCData{Location: "Ironhold", Faction: "Forge Guild"}})
	require.NoError(t, err)
	// No location entity named Ironhold exists; queries still work.
	_, err = s.Upsert(ctx, Entity{Name: "Mira", Kind: KindNPC, NPC: &NPCData{Location: "Nowhere"}})
	require.NoError(t, err)

	atIronhold := s.GetNPCsAtLocation("ironhold")
	require.Len(t, atIronhold, 1)
	assert.Equal(t, "Borin", atIronhold[0].Name)

	members := s.GetFactionMembers("forge guild")
	require.Len(t, members, 1)
	assert.Equal(t, "Borin", members[0].Name)
}

func TestEntityExportImportRoundTrip(t *testing.T) {
	store := settings.NewMemStore()
	ctx := context.Background()

	s := NewEntityStore(store)
	_, err := s.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Entity{Name: "Ironhold", Kind: KindLocation, Location: &LocationData{Visited: true}})
	require.NoError(t, err)

	exported := s.Export()

	other := NewEntityStore(settings.NewMemStore())
	require.NoError(t, other.Import(ctx, exported))
	assert.Equal(t, 2, other.Size())

	assert.ErrorIs(t, other.Import(ctx, map[EntityKind][]Entity{"ghosts": nil}), ErrInvalidEntityType)
}

func TestEntityDeleteAndLoad(t *testing.T) {
	store := settings.NewMemStore()
	ctx := context.Background()

	s := NewEntityStore(store)
	_, err := s.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC})
	require.NoError(t, err)

	reloaded := NewEntityStore(store)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1, reloaded.Size())

	require.NoError(t, reloaded.Delete(ctx, KindNPC, "borin"))
	assert.Equal(t, 0, reloaded.Size())
	assert.Error(t, reloaded.Delete(ctx, KindNPC, "borin"))
}
