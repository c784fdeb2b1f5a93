package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chroniclekeeper/chronicle/provider/mock"
	"github.com/chroniclekeeper/chronicle/settings"
)

func newTestProcessor(t *testing.T) (*Processor, *mock.Provider, *EntityStore) {
	t.Helper()
	p := mock.New()
	entities := NewEntityStore(settings.NewMemStore())
	return NewProcessor(p, entities, "test-model"), p, entities
}

func testHistory() []Message {
	return []Message{
		{Role: RoleUser, Content: "I give Borin the gem"},
		{Role: RoleAssistant, Content: "Borin smiles and pockets it"},
	}
}

func TestProcessorAppliesChangesToExistingEntity(t *testing.T) {
	proc, p, entities := newTestProcessor(t)
	ctx := context.Background()

	borin, err := entities.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC, NPC: &NPCData{Personality: "gruff"}})
	require.NoError(t, err)

	p.Enqueue("```json\n" + `{"updates": [{"name": "Borin", "type": "npc", "changes": {"personality": "warming up", "notes": "accepted the gem", "relationships": [{"targetId": "player_1", "relationship": "trusts"}]}}]}` + "\n```")

	proc.ProcessConversation(ctx, testHistory(), entities.All())

	got, ok := entities.Get(KindNPC, "Borin")
	require.True(t, ok)
	assert.Equal(t, borin.ID, got.ID)
	assert.Equal(t, "warming up", got.NPC.Personality)
	require.Len(t, got.Notes, 1)
	assert.Contains(t, got.Notes[0], "accepted the gem")
	require.Len(t, got.NPC.Relationships, 1)
	assert.Equal(t, "trusts", got.NPC.Relationships[0].Relationship)
}

func TestProcessorSkipsUnknownEntities(t *testing.T) {
	proc, p, entities := newTestProcessor(t)
	ctx := context.Background()

	p.Enqueue(`{"updates": [{"name": "Nobody", "type": "npc", "changes": {"notes": "appeared"}}]}`)

	proc.ProcessConversation(ctx, testHistory(), nil)
	assert.Equal(t, 0, entities.Size(), "extraction must never create entities")
}

func TestProcessorRequiresTwoMessages(t *testing.T) {
	proc, p, _ := newTestProcessor(t)

	proc.ProcessConversation(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	assert.Zero(t, p.ChatCalls)
}

func TestProcessorSurvivesProviderFailure(t *testing.T) {
	proc, p, entities := newTestProcessor(t)
	ctx := context.Background()
	p.Unavailable = true

	_, err := entities.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC})
	require.NoError(t, err)

	proc.ProcessConversation(ctx, testHistory(), entities.All())
	assert.False(t, proc.Processing())
}

func TestProcessorSurvivesMalformedJSON(t *testing.T) {
	proc, p, entities := newTestProcessor(t)
	ctx := context.Background()

	_, err := entities.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC})
	require.NoError(t, err)
	p.Enqueue("this is not json")

	proc.ProcessConversation(ctx, testHistory(), entities.All())

	got, ok := entities.Get(KindNPC, "Borin")
	require.True(t, ok)
	assert.Empty(t, got.Notes)
}

func TestProcessorIgnoresUnchangedFields(t *testing.T) {
	proc, p, entities := newTestProcessor(t)
	ctx := context.Background()

	_, err := entities.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC, NPC: &NPCData{Personality: "gruff"}})
	require.NoError(t, err)

	p.Enqueue(`{"updates": [{"name": "Borin", "type": "npc", "changes": {"personality": "gruff"}}]}`)
	proc.ProcessConversation(ctx, testHistory(), entities.All())

	got, _ := entities.Get(KindNPC, "Borin")
	assert.Equal(t, "gruff", got.NPC.Personality)
	assert.Empty(t, got.Notes)
}

func TestProcessorSendsEntityListAndJSONMode(t *testing.T) {
	proc, p, entities := newTestProcessor(t)
	ctx := context.Background()

	_, err := entities.Upsert(ctx, Entity{Name: "Borin", Kind: KindNPC})
	require.NoError(t, err)
	_, err = entities.Upsert(ctx, Entity{Name: "Ironhold", Kind: KindLocation})
	require.NoError(t, err)

	p.Enqueue(`{"updates": []}`)
	proc.ProcessConversation(ctx, testHistory(), entities.All())

	require.Equal(t, 1, p.ChatCalls)
	assert.True(t, p.LastChat.JSONMode)
	assert.Equal(t, float32(0.1), p.LastChat.Temperature)
	assert.Contains(t, p.LastChat.Messages[0].Content, "Borin (NPC)")
	assert.Contains(t, p.LastChat.Messages[0].Content, "Ironhold (Location)")
}
