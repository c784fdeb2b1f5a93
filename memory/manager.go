package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chroniclekeeper/chronicle/memory/vector"
	"github.com/chroniclekeeper/chronicle/provider"
	"github.com/chroniclekeeper/chronicle/settings"
)

const settingSessionSummaries = "sessionSummaries"

// ErrNotInitialized is returned when a Manager method runs before
// Initialize has loaded the stores.
var ErrNotInitialized = errors.New("memory manager not initialized")

// Config holds Manager tunables.
type Config struct {
	// Model is the chat/completion model for summarization and
	// extraction.
	Model string

	// EmbedModel is the embedding model for semantic retrieval.
	EmbedModel string

	// ShortTermSize caps the short-term buffer.
	ShortTermSize int

	// SummarizationThreshold is the buffer size that triggers
	// compression of the older half into a long-term summary.
	SummarizationThreshold int

	// MaxShortTermContext is how many recent messages GetContext
	// includes by default.
	MaxShortTermContext int

	// MaxLongTermContext is how many long-term entries GetContext
	// includes by default.
	MaxLongTermContext int

	// MaxSemanticResults is how many vector hits GetContext includes
	// by default.
	MaxSemanticResults int
}

// DefaultConfig is the standard Manager configuration.
var DefaultConfig = Config{
	Model:                  "llama3:8b",
	EmbedModel:             "nomic-embed-text",
	ShortTermSize:          DefaultShortTermSize,
	SummarizationThreshold: 50,
	MaxShortTermContext:    30,
	MaxLongTermContext:     5,
	MaxSemanticResults:     5,
}

// SessionSummary is a stored recap of a play session.
type SessionSummary struct {
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"messageCount,omitempty"`
}

// Manager orchestrates the memory subsystems: the short-term buffer,
// the long-term store, entities, the vector index, the summarizer, and
// the conversation processor. It owns the policy decisions (when to
// summarize, what goes into context) while the subsystems own storage.
type Manager struct {
	cfg      Config
	store    settings.Store
	provider provider.Provider

	ShortTerm  *ShortTermMemory
	LongTerm   *LongTermMemory
	Entities   *EntityStore
	Vector     *vector.Store
	Summarizer *Summarizer
	Processor  *Processor

	sessionSummaries []SessionSummary
	initialized      bool
}

// NewManager wires up a memory system persisting through store and
// talking to p. Zero-valued cfg fields fall back to DefaultConfig.
func NewManager(store settings.Store, p provider.Provider, cfg Config) (*Manager, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultConfig.Model
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultConfig.EmbedModel
	}
	if cfg.ShortTermSize <= 0 {
		cfg.ShortTermSize = DefaultConfig.ShortTermSize
	}
	if cfg.SummarizationThreshold <= 0 {
		cfg.SummarizationThreshold = DefaultConfig.SummarizationThreshold
	}
	if cfg.MaxShortTermContext <= 0 {
		cfg.MaxShortTermContext = DefaultConfig.MaxShortTermContext
	}
	if cfg.MaxLongTermContext <= 0 {
		cfg.MaxLongTermContext = DefaultConfig.MaxLongTermContext
	}
	if cfg.MaxSemanticResults <= 0 {
		cfg.MaxSemanticResults = DefaultConfig.MaxSemanticResults
	}

	vec, err := vector.New(store, p, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	entities := NewEntityStore(store)
	m := &Manager{
		cfg:        cfg,
		store:      store,
		provider:   p,
		ShortTerm:  NewShortTermMemory(store, cfg.ShortTermSize),
		LongTerm:   NewLongTermMemory(store),
		Entities:   entities,
		Vector:     vec,
		Summarizer: NewSummarizer(p, cfg.Model),
		Processor:  NewProcessor(p, entities, cfg.Model),
	}
	return m, nil
}

// Initialize loads every store. Unlike the stores' own mutation
// methods, load failures here propagate: starting with silently missing
// memory is worse than failing fast.
func (m *Manager) Initialize(ctx context.Context) error {
	log.Printf("[MEMORY] Initializing memory system...")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.ShortTerm.Load(gctx) })
	g.Go(func() error { return m.LongTerm.Load(gctx) })
	g.Go(func() error { return m.Entities.Load(gctx) })
	g.Go(func() error { return m.Vector.Load(gctx) })
	g.Go(func() error { return m.loadSessionSummaries(gctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("initialize memory: %w", err)
	}

	m.initialized = true
	log.Printf("[MEMORY] Memory system initialized")
	return nil
}

func (m *Manager) loadSessionSummaries(ctx context.Context) error {
	var summaries []SessionSummary
	err := m.store.Get(ctx, settingSessionSummaries, &summaries)
	if errors.Is(err, settings.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session summaries: %w", err)
	}
	m.sessionSummaries = summaries
	return nil
}

func (m *Manager) saveSessionSummaries(ctx context.Context) {
	if err := m.store.Set(ctx, settingSessionSummaries, m.sessionSummaries); err != nil {
		log.Printf("[MEMORY] Failed to save session summaries: %v", err)
	}
}

func (m *Manager) guard() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	return nil
}

// AddMessage records a conversation turn: it goes into the short-term
// buffer and the vector index, then the buffer is checked against the
// summarization threshold. Persistence problems are logged, not
// returned; the turn is always recorded in memory.
func (m *Manager) AddMessage(ctx context.Context, role Role, content string) (Message, error) {
	if err := m.guard(); err != nil {
		return Message{}, err
	}

	msg, err := m.ShortTerm.Add(ctx, Message{Role: role, Content: content})
	if err != nil {
		log.Printf("[MEMORY] Short-term persist failed: %v", err)
	}

	if err := m.Vector.AddEntry(ctx, newID("msg"), content, map[string]string{"type": "conversation"}); err != nil {
		log.Printf("[MEMORY] Vector persist failed: %v", err)
	}

	if m.ShortTerm.Size() >= m.cfg.SummarizationThreshold {
		m.TriggerSummarization(ctx)
	}
	return msg, nil
}

// AddStoryBeat records a durable story event in long-term memory and
// the vector index. Empty type and importance fall back to story_beat
// and medium.
func (m *Manager) AddStoryBeat(ctx context.Context, content string, entryType EntryType, importance Importance, metadata map[string]any) (Entry, error) {
	if err := m.guard(); err != nil {
		return Entry{}, err
	}

	entry, err := m.LongTerm.Add(ctx, Entry{
		Content:    content,
		Type:       entryType,
		Importance: importance,
		Metadata:   metadata,
	})
	if err != nil {
		log.Printf("[MEMORY] Long-term persist failed: %v", err)
	}

	if err := m.Vector.AddEntry(ctx, newID("story"), content, map[string]string{"type": string(entry.Type)}); err != nil {
		log.Printf("[MEMORY] Vector persist failed: %v", err)
	}
	return entry, nil
}

// AddEntity upserts an entity and indexes its formatted description for
// semantic retrieval.
func (m *Manager) AddEntity(ctx context.Context, entity Entity) (Entity, error) {
	if err := m.guard(); err != nil {
		return Entity{}, err
	}

	stored, err := m.Entities.Upsert(ctx, entity)
	if err != nil {
		return Entity{}, err
	}

	desc := formatEntityDescription(stored)
	if err := m.Vector.AddEntry(ctx, stored.ID, desc, map[string]string{"type": "entity_" + string(stored.Kind)}); err != nil {
		log.Printf("[MEMORY] Vector persist failed: %v", err)
	}
	return stored, nil
}

// formatEntityDescription renders an entity as a typed prose line. The
// "NPC:" / "Location:" prefixes double as filters when assembling
// prompt context.
func formatEntityDescription(e Entity) string {
	notes := strings.Join(e.Notes, " ")
	switch e.Kind {
	case KindNPC:
		personality := "unknown"
		if e.NPC != nil && e.NPC.Personality != "" {
			personality = e.NPC.Personality
		}
		return fmt.Sprintf("NPC: %s. %s Personality: %s. %s", e.Name, e.Description, personality, notes)
	case KindLocation:
		features := "none noted"
		if e.Location != nil && len(e.Location.Features) > 0 {
			features = strings.Join(e.Location.Features, ", ")
		}
		return fmt.Sprintf("Location: %s. %s Notable features: %s. %s", e.Name, e.Description, features, notes)
	case KindItem:
		properties := "none"
		if e.Item != nil && len(e.Item.Properties) > 0 {
			properties = strings.Join(e.Item.Properties, ", ")
		}
		return fmt.Sprintf("Item: %s. %s Properties: %s. %s", e.Name, e.Description, properties, notes)
	case KindFaction:
		goals := "unknown"
		if e.Faction != nil && len(e.Faction.Goals) > 0 {
			goals = strings.Join(e.Faction.Goals, ", ")
		}
		return fmt.Sprintf("Faction: %s. %s Goals: %s. %s", e.Name, e.Description, goals, notes)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Description)
}

// ContextOptions selects which sources GetContext pulls from. Zero
// limits fall back to the Manager config; start from
// DefaultContextOptions to include every source.
type ContextOptions struct {
	IncludeShortTerm      bool
	IncludeLongTerm       bool
	IncludeEntities       bool
	IncludeSemanticSearch bool
	MaxShortTerm          int
	MaxLongTerm           int
	MaxSemanticResults    int
}

// DefaultContextOptions includes every source with config limits.
var DefaultContextOptions = ContextOptions{
	IncludeShortTerm:      true,
	IncludeLongTerm:       true,
	IncludeEntities:       true,
	IncludeSemanticSearch: true,
}

// Context is the assembled memory snapshot for one prompt.
type Context struct {
	ShortTerm      []Message
	LongTerm       []Entry
	Entities       map[EntityKind][]Entity
	Semantic       []vector.Match
	SessionSummary *SessionSummary
}

// GetContext assembles memory relevant to currentMessage from every
// enabled source. A failing vector search degrades to an empty semantic
// section rather than failing the call.
func (m *Manager) GetContext(ctx context.Context, currentMessage string, opts ContextOptions) (Context, error) {
	if err := m.guard(); err != nil {
		return Context{}, err
	}

	out := Context{
		Entities: map[EntityKind][]Entity{},
	}

	if opts.IncludeShortTerm {
		limit := opts.MaxShortTerm
		if limit <= 0 {
			limit = m.cfg.MaxShortTermContext
		}
		out.ShortTerm = m.ShortTerm.GetRecent(limit)
	}

	if opts.IncludeLongTerm {
		limit := opts.MaxLongTerm
		if limit <= 0 {
			limit = m.cfg.MaxLongTermContext
		}
		out.LongTerm = m.LongTerm.GetRecent(limit)
	}

	if opts.IncludeEntities {
		out.Entities = m.findMentionedEntities(currentMessage)
	}

	if opts.IncludeSemanticSearch {
		limit := opts.MaxSemanticResults
		if limit <= 0 {
			limit = m.cfg.MaxSemanticResults
		}
		out.Semantic = m.Vector.Search(ctx, currentMessage, limit)
	}

	if n := len(m.sessionSummaries); n > 0 {
		latest := m.sessionSummaries[n-1]
		out.SessionSummary = &latest
	}

	return out, nil
}

// findMentionedEntities returns entities whose names appear in the
// text, grouped by kind.
func (m *Manager) findMentionedEntities(text string) map[EntityKind][]Entity {
	textLower := strings.ToLower(text)
	result := map[EntityKind][]Entity{}

	for _, kind := range entityKinds {
		for _, e := range m.Entities.GetAll(kind) {
			if e.Name != "" && strings.Contains(textLower, strings.ToLower(e.Name)) {
				result[kind] = append(result[kind], e)
			}
		}
	}
	return result
}

// FormatContextForPrompt renders a Context as markdown sections for
// injection ahead of the system prompt: session summary, mentioned
// entities, story points, then up to three semantic hits. Semantic hits
// that are entity descriptions are dropped so entities never appear
// twice.
func FormatContextForPrompt(c Context) string {
	var sections []string

	if c.SessionSummary != nil {
		sections = append(sections, "## Previous Session Summary\n"+c.SessionSummary.Content)
	}

	var entityLines []string
	for _, kind := range entityKinds {
		for _, e := range c.Entities[kind] {
			desc := e.Description
			if desc == "" {
				desc = "No description"
			}
			entityLines = append(entityLines, fmt.Sprintf("- **%s**: %s", e.Name, desc))
		}
	}
	if len(entityLines) > 0 {
		sections = append(sections, "## Relevant Entities\n"+strings.Join(entityLines, "\n"))
	}

	if len(c.LongTerm) > 0 {
		var lines []string
		for _, e := range c.LongTerm {
			lines = append(lines, "- "+e.Content)
		}
		sections = append(sections, "## Important Story Points\n"+strings.Join(lines, "\n"))
	}

	if len(c.Semantic) > 0 {
		var lines []string
		for _, r := range c.Semantic {
			if strings.HasPrefix(r.Content, "NPC:") || strings.HasPrefix(r.Content, "Location:") {
				continue
			}
			lines = append(lines, "- "+r.Content)
			if len(lines) == 3 {
				break
			}
		}
		if len(lines) > 0 {
			sections = append(sections, "## Related Context\n"+strings.Join(lines, "\n"))
		}
	}

	return strings.Join(sections, "\n\n")
}

// TriggerSummarization compresses the older half of the short-term
// buffer into a high-importance long-term summary and evicts exactly
// the summarized messages. Fewer than ten candidates, or a provider
// failure, leaves the buffer untouched.
func (m *Manager) TriggerSummarization(ctx context.Context) {
	log.Printf("[MEMORY] Triggering memory summarization...")

	messages := m.ShortTerm.GetAll()
	half := len(messages) / 2
	toSummarize := messages[:half]
	if len(toSummarize) < 10 {
		return
	}

	summary, err := m.Summarizer.Summarize(ctx, toSummarize)
	if err != nil {
		log.Printf("[MEMORY] Summarization failed, keeping messages: %v", err)
		return
	}
	if summary == "" {
		return
	}

	if _, err := m.AddStoryBeat(ctx, summary, EntrySessionSummary, ImportanceHigh, map[string]any{
		"messageCount": len(toSummarize),
	}); err != nil {
		log.Printf("[MEMORY] Failed to store summary: %v", err)
		return
	}
	if err := m.ShortTerm.RemoveOldest(ctx, half); err != nil {
		log.Printf("[MEMORY] Failed to evict summarized messages: %v", err)
	}

	log.Printf("[MEMORY] Summarized %d messages", len(toSummarize))
}

// SummarizeSession produces a recap of the whole short-term buffer and
// appends it to the stored session summaries.
func (m *Manager) SummarizeSession(ctx context.Context) (SessionSummary, error) {
	if err := m.guard(); err != nil {
		return SessionSummary{}, err
	}

	messages := m.ShortTerm.GetAll()
	if len(messages) == 0 {
		return SessionSummary{}, errors.New("no conversation to summarize")
	}

	names := map[EntityKind][]string{}
	for _, kind := range entityKinds {
		for _, e := range m.Entities.GetAll(kind) {
			names[kind] = append(names[kind], e.Name)
		}
	}

	content, err := m.Summarizer.SummarizeSession(ctx, messages, names)
	if err != nil {
		return SessionSummary{}, err
	}

	summary := SessionSummary{
		Content:      content,
		Timestamp:    time.Now(),
		MessageCount: len(messages),
	}
	m.sessionSummaries = append(m.sessionSummaries, summary)
	m.saveSessionSummaries(ctx)
	return summary, nil
}

// ProcessRecentConversation runs entity-change extraction over the
// recent conversation against the entities it mentions. Failures and
// concurrent runs are silently skipped; extraction never blocks play.
func (m *Manager) ProcessRecentConversation(ctx context.Context) {
	if !m.initialized {
		return
	}
	history := m.ShortTerm.GetRecent(10)

	var mentioned []Entity
	seen := map[string]bool{}
	for _, msg := range history {
		for _, list := range m.findMentionedEntities(msg.Content) {
			for _, e := range list {
				if !seen[e.ID] {
					seen[e.ID] = true
					mentioned = append(mentioned, e)
				}
			}
		}
	}
	m.Processor.ProcessConversation(ctx, history, mentioned)
}

// SearchResult is one hit from a cross-store search.
type SearchResult struct {
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// Search queries every store and returns the merged results sorted by
// score, best first. Sources use different scoring scales, so ordering
// across sources is a heuristic rather than a calibrated ranking.
func (m *Manager) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if err := m.guard(); err != nil {
		return nil, err
	}

	var results []SearchResult

	for _, r := range m.ShortTerm.Search(query) {
		results = append(results, SearchResult{Source: "short-term", Score: r.Score, Content: r.Content})
	}
	for _, r := range m.LongTerm.Search(query) {
		results = append(results, SearchResult{Source: "long-term", Score: r.Score, Content: r.Content})
	}
	for _, r := range m.Entities.Search(query) {
		content := r.Name
		if r.Description != "" {
			content = fmt.Sprintf("%s: %s", r.Name, r.Description)
		}
		results = append(results, SearchResult{Source: "entities", Score: r.Score, Content: content})
	}
	for _, r := range m.Vector.Search(ctx, query, m.cfg.MaxSemanticResults) {
		results = append(results, SearchResult{Source: "semantic", Score: r.Score, Content: r.Content})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// ConversationHistory returns the short-term buffer as provider chat
// messages.
func (m *Manager) ConversationHistory() []provider.Message {
	var out []provider.Message
	for _, msg := range m.ShortTerm.GetAll() {
		out = append(out, provider.Message{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

// ClearShortTerm empties the conversation buffer.
func (m *Manager) ClearShortTerm(ctx context.Context) error {
	if err := m.guard(); err != nil {
		return err
	}
	if err := m.ShortTerm.Clear(ctx); err != nil {
		return err
	}
	log.Printf("[MEMORY] Short-term memory cleared")
	return nil
}

// SaveAll persists every store immediately, including vector entries
// waiting on the flush interval.
func (m *Manager) SaveAll(ctx context.Context) error {
	if err := m.guard(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.ShortTerm.Save(gctx) })
	g.Go(func() error { return m.LongTerm.Save(gctx) })
	g.Go(func() error { return m.Entities.Save(gctx) })
	g.Go(func() error { return m.Vector.Flush(gctx) })
	return g.Wait()
}

// Export is the portable snapshot of campaign memory.
type Export struct {
	ShortTerm  []Message               `json:"shortTerm"`
	LongTerm   []Entry                 `json:"longTerm"`
	Entities   map[EntityKind][]Entity `json:"entities"`
	Summaries  []SessionSummary        `json:"sessionSummaries,omitempty"`
	ExportedAt time.Time               `json:"exportedAt"`
}

// ExportAll snapshots every store.
func (m *Manager) ExportAll() (Export, error) {
	if err := m.guard(); err != nil {
		return Export{}, err
	}
	return Export{
		ShortTerm:  m.ShortTerm.GetAll(),
		LongTerm:   m.LongTerm.GetAll(),
		Entities:   m.Entities.Export(),
		Summaries:  append([]SessionSummary(nil), m.sessionSummaries...),
		ExportedAt: time.Now(),
	}, nil
}

// ImportAll replaces memory with the snapshot and rebuilds the vector
// index from the imported content.
func (m *Manager) ImportAll(ctx context.Context, data Export) error {
	if err := m.guard(); err != nil {
		return err
	}

	if data.ShortTerm != nil {
		if err := m.ShortTerm.Import(ctx, data.ShortTerm); err != nil {
			return err
		}
	}
	if data.LongTerm != nil {
		if err := m.LongTerm.Import(ctx, data.LongTerm); err != nil {
			return err
		}
	}
	if data.Entities != nil {
		if err := m.Entities.Import(ctx, data.Entities); err != nil {
			return err
		}
	}
	if data.Summaries != nil {
		m.sessionSummaries = append([]SessionSummary(nil), data.Summaries...)
		m.saveSessionSummaries(ctx)
	}

	var entries []vector.Entry
	for _, msg := range m.ShortTerm.GetAll() {
		entries = append(entries, vector.Entry{
			ID:       newID("msg"),
			Content:  msg.Content,
			Metadata: map[string]string{"type": "conversation"},
		})
	}
	for _, e := range m.LongTerm.GetAll() {
		entries = append(entries, vector.Entry{
			ID:       newID("story"),
			Content:  e.Content,
			Metadata: map[string]string{"type": string(e.Type)},
		})
	}
	for _, kind := range entityKinds {
		for _, e := range m.Entities.GetAll(kind) {
			entries = append(entries, vector.Entry{
				ID:       e.ID,
				Content:  formatEntityDescription(e),
				Metadata: map[string]string{"type": "entity_" + string(kind)},
			})
		}
	}
	if err := m.Vector.Import(ctx, entries); err != nil {
		return err
	}

	log.Printf("[MEMORY] Memories imported successfully")
	return nil
}

// Stats summarizes the size of each store.
type Stats struct {
	ShortTermMessages int `json:"shortTermMessages"`
	LongTermEntries   int `json:"longTermEntries"`
	Entities          int `json:"entities"`
	VectorEntries     int `json:"vectorEntries"`
	EmbeddedEntries   int `json:"embeddedEntries"`
	SessionSummaries  int `json:"sessionSummaries"`
}

// Stats reports current store sizes.
func (m *Manager) Stats() Stats {
	return Stats{
		ShortTermMessages: m.ShortTerm.Size(),
		LongTermEntries:   m.LongTerm.Size(),
		Entities:          m.Entities.Size(),
		VectorEntries:     m.Vector.Size(),
		EmbeddedEntries:   m.Vector.EmbeddedCount(),
		SessionSummaries:  len(m.sessionSummaries),
	}
}
