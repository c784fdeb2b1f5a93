package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/chroniclekeeper/chronicle/provider"
)

const summaryPrompt = `Summarize the following conversation segment from a tabletop RPG session.
Focus on: key story events, important decisions, NPC interactions, combat outcomes, and any world-building details.
Keep the summary concise but complete. Use past tense.

CONVERSATION:
%s

SUMMARY:`

const sessionSummaryPrompt = `Create a session summary for this tabletop RPG session.

Include:
- Major plot developments
- Key NPC interactions
- Combat encounters and outcomes
- Items acquired or lost
- Important player decisions
- Where the party ended up

%s
CONVERSATION:
%s

SESSION SUMMARY:`

const extractEntitiesPrompt = `Extract named entities from this RPG session text.
Return JSON with: npcs, locations, items, factions.
Only include clearly named entities.

TEXT:
%s

JSON:`

// Summarizer compresses conversation segments into prose using the
// language model.
type Summarizer struct {
	provider provider.Provider
	model    string
}

// NewSummarizer creates a summarizer using the given provider and model.
func NewSummarizer(p provider.Provider, model string) *Summarizer {
	return &Summarizer{provider: p, model: model}
}

// formatTranscript renders messages as "Player:" / "DM:" lines.
func formatTranscript(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		speaker := "DM"
		if m.Role == RoleUser {
			speaker = "Player"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, m.Content))
	}
	return strings.Join(lines, "\n")
}

// Summarize condenses a conversation segment into a short past-tense
// summary.
func (s *Summarizer) Summarize(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	prompt := fmt.Sprintf(summaryPrompt, formatTranscript(messages))
	out, err := s.provider.Generate(ctx, provider.GenerateRequest{
		Model:       s.model,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// SummarizeSession produces a full session recap. entities, when
// non-nil, is serialized into the prompt so the model can reference
// known names.
func (s *Summarizer) SummarizeSession(ctx context.Context, messages []Message, entities any) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	entityBlock := ""
	if entities != nil {
		if data, err := json.Marshal(entities); err == nil {
			entityBlock = fmt.Sprintf("Known Entities: %s\n\n", data)
		}
	}

	prompt := fmt.Sprintf(sessionSummaryPrompt, entityBlock, formatTranscript(messages))
	out, err := s.provider.Generate(ctx, provider.GenerateRequest{
		Model:       s.model,
		Prompt:      prompt,
		Temperature: 0.4,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("summarize session: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ExtractedEntities holds the names the model pulled out of a text.
type ExtractedEntities struct {
	NPCs      []string `json:"npcs"`
	Locations []string `json:"locations"`
	Items     []string `json:"items"`
	Factions  []string `json:"factions"`
}

// ExtractEntities asks the model for the named entities in text. A
// response without a parsable JSON object yields an empty result, not
// an error; extraction is best-effort.
func (s *Summarizer) ExtractEntities(ctx context.Context, text string) (ExtractedEntities, error) {
	var result ExtractedEntities
	if strings.TrimSpace(text) == "" {
		return result, nil
	}

	out, err := s.provider.Generate(ctx, provider.GenerateRequest{
		Model:       s.model,
		Prompt:      fmt.Sprintf(extractEntitiesPrompt, text),
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		return result, fmt.Errorf("extract entities: %w", err)
	}

	raw := firstJSONObject(out)
	if raw == "" {
		log.Printf("[SUMMARIZER] No JSON object in extraction response")
		return result, nil
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		log.Printf("[SUMMARIZER] Failed to parse extraction response: %v", err)
		return ExtractedEntities{}, nil
	}
	return result, nil
}

// firstJSONObject returns the outermost {...} block in s, or "".
func firstJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
