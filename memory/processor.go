package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chroniclekeeper/chronicle/provider"
)

const processorSystemPrompt = `You are a data extractor for a tabletop RPG.
Analyze the conversation below and identify any CHANGES to the characters/entities listed.
Focus on:
1. New relationships or changes in existing ones (e.g., "now trusts the player", "is angry at X").
2. New personality traits revealed.
3. Important new facts or notes.
4. Changes in loyalty, motivation, or status.

Entities in scene: %s

Return ONLY a JSON object with this structure:
{
    "updates": [
        {
            "name": "Entity Name",
            "type": "npc|location|item|faction",
            "changes": {
                "personality": "new trait",
                "motivation": "new motivation",
                "notes": "new fact to append",
                "relationships": [
                    { "targetId": "Target Name", "relationship": "Description of relationship" }
                ]
            }
        }
    ]
}
If no significant changes occurred, return { "updates": [] }.
Do not include unchanged fields. "notes" should be a short addition to their history.`

// entityUpdate is one change record in the model's extraction response.
type entityUpdate struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Changes struct {
		Personality   string         `json:"personality"`
		Motivation    string         `json:"motivation"`
		Notes         string         `json:"notes"`
		Relationships []Relationship `json:"relationships"`
	} `json:"changes"`
}

type updateBatch struct {
	Updates []entityUpdate `json:"updates"`
}

// Processor watches conversation history for entity changes and folds
// them back into the entity store. Extraction runs single-flight: a
// call that arrives while another is in progress returns immediately.
type Processor struct {
	provider   provider.Provider
	entities   *EntityStore
	model      string
	processing atomic.Bool
}

// NewProcessor creates a processor writing into entities.
func NewProcessor(p provider.Provider, entities *EntityStore, model string) *Processor {
	return &Processor{provider: p, entities: entities, model: model}
}

// Processing reports whether an extraction is currently running.
func (p *Processor) Processing() bool {
	return p.processing.Load()
}

// ProcessConversation extracts entity changes from history and applies
// them. Fewer than two messages, a concurrent run already in flight, or
// a provider failure all make this a no-op; extraction is best-effort
// and never blocks the conversation.
func (p *Processor) ProcessConversation(ctx context.Context, history []Message, contextEntities []Entity) {
	if len(history) < 2 {
		return
	}
	if !p.processing.CompareAndSwap(false, true) {
		return
	}
	defer p.processing.Store(false)

	log.Printf("[PROCESSOR] Processing conversation for entity updates...")

	batch, err := p.extractUpdates(ctx, history, contextEntities)
	if err != nil {
		log.Printf("[PROCESSOR] Extraction failed: %v", err)
		return
	}
	if batch == nil {
		return
	}
	p.applyUpdates(ctx, batch)
}

func formatEntityList(entities []Entity) string {
	var names []string
	for _, e := range entities {
		switch e.Kind {
		case KindNPC:
			names = append(names, fmt.Sprintf("%s (NPC)", e.Name))
		case KindLocation:
			names = append(names, fmt.Sprintf("%s (Location)", e.Name))
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, ", ")
}

func (p *Processor) extractUpdates(ctx context.Context, history []Message, contextEntities []Entity) (*updateBatch, error) {
	var lines []string
	for _, m := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}

	resp, err := p.provider.Chat(ctx, provider.ChatRequest{
		Model: p.model,
		Messages: []provider.Message{
			provider.SystemMessage(fmt.Sprintf(processorSystemPrompt, formatEntityList(contextEntities))),
			provider.UserMessage(strings.Join(lines, "\n")),
		},
		Temperature: 0.1,
		MaxTokens:   512,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var batch updateBatch
	if err := json.Unmarshal([]byte(stripCodeFences(resp)), &batch); err != nil {
		log.Printf("[PROCESSOR] Failed to parse update JSON: %v", err)
		return nil, nil
	}
	return &batch, nil
}

// stripCodeFences removes a surrounding markdown code fence, which some
// models emit even in JSON mode.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var updateKinds = map[string]EntityKind{
	"npc":      KindNPC,
	"location": KindLocation,
	"item":     KindItem,
	"faction":  KindFaction,
}

func (p *Processor) applyUpdates(ctx context.Context, batch *updateBatch) {
	applied := 0
	for _, update := range batch.Updates {
		if update.Name == "" {
			continue
		}
		kind, ok := updateKinds[update.Type]
		if !ok {
			kind = KindFaction
		}

		// Only existing entities are updated. Creating entities from
		// extraction output pollutes the store with hallucinated names.
		existing, ok := p.entities.Get(kind, update.Name)
		if !ok {
			log.Printf("[PROCESSOR] Skipping update for unknown entity: %s", update.Name)
			continue
		}

		changed := false
		patch := Entity{ID: existing.ID, Name: existing.Name, Kind: kind}

		if kind == KindNPC {
			npc := &NPCData{}
			cur := existing.NPC
			if update.Changes.Personality != "" && (cur == nil || update.Changes.Personality != cur.Personality) {
				npc.Personality = update.Changes.Personality
				changed = true
			}
			if update.Changes.Motivation != "" && (cur == nil || update.Changes.Motivation != cur.Motivation) {
				npc.Motivation = update.Changes.Motivation
				changed = true
			}
			if changed {
				patch.NPC = npc
			}
		}

		if update.Changes.Notes != "" {
			stamp := time.Now().Format("15:04:05")
			patch.Notes = []string{fmt.Sprintf("[%s] %s", stamp, update.Changes.Notes)}
			changed = true
		}

		for _, rel := range update.Changes.Relationships {
			if err := p.entities.UpdateRelationship(ctx, kind, existing.ID, rel.TargetID, rel.Relationship); err != nil {
				log.Printf("[PROCESSOR] Relationship update failed for %s: %v", existing.Name, err)
				continue
			}
			changed = true
		}

		if !changed {
			continue
		}
		if patch.NPC != nil || len(patch.Notes) > 0 {
			if _, err := p.entities.Upsert(ctx, patch); err != nil {
				log.Printf("[PROCESSOR] Failed to apply update for %s: %v", existing.Name, err)
				continue
			}
		}
		applied++
		log.Printf("[PROCESSOR] Updated entity %s", existing.Name)
	}

	if applied > 0 {
		log.Printf("[PROCESSOR] Updated %d entities from conversation", applied)
	}
}
