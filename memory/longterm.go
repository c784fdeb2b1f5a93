package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/chroniclekeeper/chronicle/settings"
)

const settingLongTerm = "longTermMemory"

// EntryType classifies a long-term memory entry.
type EntryType string

const (
	EntryConversation   EntryType = "conversation"
	EntryStoryBeat      EntryType = "story_beat"
	EntryQuestProgress  EntryType = "quest_progress"
	EntryRelationship   EntryType = "relationship"
	EntrySessionSummary EntryType = "session_summary"
	EntryWorldFact      EntryType = "world_fact"
)

// ValidEntryType reports whether t names a known entry type.
func ValidEntryType(t EntryType) bool {
	switch t {
	case EntryConversation, EntryStoryBeat, EntryQuestProgress,
		EntryRelationship, EntrySessionSummary, EntryWorldFact:
		return true
	}
	return false
}

// Importance weights an entry during retrieval and pruning.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// ValidImportance reports whether i names a known importance level.
func ValidImportance(i Importance) bool {
	switch i {
	case ImportanceLow, ImportanceMedium, ImportanceHigh:
		return true
	}
	return false
}

// Entry is a durable piece of campaign memory.
type Entry struct {
	ID              string         `json:"id"`
	Type            EntryType      `json:"type"`
	Content         string         `json:"content"`
	Importance      Importance     `json:"importance"`
	Timestamp       time.Time      `json:"timestamp"`
	Tags            []string       `json:"tags,omitempty"`
	RelatedEntities []string       `json:"relatedEntities,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Archived        bool           `json:"archived,omitempty"`
}

// EntryMatch is a search hit with its relevance score.
type EntryMatch struct {
	Entry
	Score float64
}

// LongTermMemory is the durable, searchable store of campaign history.
// Entries are kept in insertion order; retrieval methods sort copies on
// demand, which is fine at campaign scale (hundreds of entries, not
// millions).
type LongTermMemory struct {
	store   settings.Store
	entries []Entry
}

// NewLongTermMemory creates an empty store persisting to store.
func NewLongTermMemory(store settings.Store) *LongTermMemory {
	return &LongTermMemory{store: store}
}

// Load restores entries from the settings store.
func (m *LongTermMemory) Load(ctx context.Context) error {
	var entries []Entry
	err := m.store.Get(ctx, settingLongTerm, &entries)
	if errors.Is(err, settings.ErrNotFound) {
		m.entries = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("load long-term memory: %w", err)
	}
	m.entries = entries
	log.Printf("[LONGTERM] Loaded %d entries", len(m.entries))
	return nil
}

func (m *LongTermMemory) save(ctx context.Context) error {
	if err := m.store.Set(ctx, settingLongTerm, m.entries); err != nil {
		log.Printf("[LONGTERM] Save failed (in-memory state still authoritative): %v", err)
		return fmt.Errorf("save long-term memory: %w", err)
	}
	return nil
}

// Save persists all entries immediately.
func (m *LongTermMemory) Save(ctx context.Context) error {
	return m.save(ctx)
}

// Size returns the number of entries, archived included.
func (m *LongTermMemory) Size() int {
	return len(m.entries)
}

// Add stores a new entry, filling in id, timestamp, and the defaults
// story_beat / medium when unset. Returns the stored entry.
func (m *LongTermMemory) Add(ctx context.Context, entry Entry) (Entry, error) {
	stored := entry
	if stored.ID == "" {
		stored.ID = newID("ltm")
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}
	if stored.Type == "" {
		stored.Type = EntryStoryBeat
	}
	if stored.Importance == "" {
		stored.Importance = ImportanceMedium
	}

	m.entries = append(m.entries, stored)
	return stored, m.save(ctx)
}

// Get returns the entry with the given id.
func (m *LongTermMemory) Get(id string) (Entry, bool) {
	for _, e := range m.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// GetAll returns a copy of every entry in insertion order.
func (m *LongTermMemory) GetAll() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// GetByType returns non-archived entries of the given type, newest first.
func (m *LongTermMemory) GetByType(entryType EntryType) []Entry {
	var out []Entry
	for _, e := range m.entries {
		if e.Type == entryType && !e.Archived {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out
}

// GetByImportance returns non-archived entries of the given importance,
// newest first.
func (m *LongTermMemory) GetByImportance(importance Importance) []Entry {
	var out []Entry
	for _, e := range m.entries {
		if e.Importance == importance && !e.Archived {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out
}

// GetRecent returns the count newest non-archived entries, newest first.
func (m *LongTermMemory) GetRecent(count int) []Entry {
	var out []Entry
	for _, e := range m.entries {
		if !e.Archived {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	if count > 0 && count < len(out) {
		out = out[:count]
	}
	return out
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}

// Search scores non-archived entries against the query and returns those
// scoring strictly above 0.3, best first. Each query keyword found in the
// content adds 0.3, importance adds 0.2 (high) or 0.1 (medium), and
// recency adds up to 0.1 fading to zero over roughly 42 days. The cutoff
// means at least one keyword must match; importance and recency alone
// never surface an entry.
func (m *LongTermMemory) Search(query string) []EntryMatch {
	words := keywords(query)
	now := time.Now()

	var results []EntryMatch
	for _, e := range m.entries {
		if e.Archived {
			continue
		}
		contentLower := strings.ToLower(e.Content)

		score := 0.0
		for _, w := range words {
			if strings.Contains(contentLower, w) {
				score += 0.3
			}
		}
		switch e.Importance {
		case ImportanceHigh:
			score += 0.2
		case ImportanceMedium:
			score += 0.1
		}
		ageHours := now.Sub(e.Timestamp).Hours()
		if recency := 0.1 - ageHours/1000; recency > 0 {
			score += recency
		}

		if score > 0.3 {
			results = append(results, EntryMatch{Entry: e, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// Update applies fn to the entry with the given id and persists.
func (m *LongTermMemory) Update(ctx context.Context, id string, fn func(*Entry)) error {
	for i := range m.entries {
		if m.entries[i].ID == id {
			fn(&m.entries[i])
			return m.save(ctx)
		}
	}
	return fmt.Errorf("long-term entry %q not found", id)
}

// Delete removes the entry with the given id and persists.
func (m *LongTermMemory) Delete(ctx context.Context, id string) error {
	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return m.save(ctx)
		}
	}
	return fmt.Errorf("long-term entry %q not found", id)
}

// Archive flags entries older than daysOld as archived. High-importance
// entries are never archived. Returns the number of entries flagged.
func (m *LongTermMemory) Archive(ctx context.Context, daysOld int) (int, error) {
	if daysOld <= 0 {
		daysOld = 30
	}
	cutoff := time.Now().AddDate(0, 0, -daysOld)

	archived := 0
	for i := range m.entries {
		e := &m.entries[i]
		if e.Archived || e.Importance == ImportanceHigh {
			continue
		}
		if e.Timestamp.Before(cutoff) {
			e.Archived = true
			archived++
		}
	}
	if archived == 0 {
		return 0, nil
	}
	log.Printf("[LONGTERM] Archived %d entries older than %d days", archived, daysOld)
	return archived, m.save(ctx)
}

// Prune permanently deletes the least valuable archived entries until
// at most maxArchived remain. High-importance entries are never
// deleted. Importance dominates: a low-importance entry is always
// dropped before a medium one regardless of age; within the same
// importance, older goes first. Returns the number deleted.
func (m *LongTermMemory) Prune(ctx context.Context, maxArchived int) (int, error) {
	if maxArchived < 0 {
		maxArchived = 100
	}

	total := 0
	var candidates []int
	for i, e := range m.entries {
		if !e.Archived {
			continue
		}
		total++
		if e.Importance != ImportanceHigh {
			candidates = append(candidates, i)
		}
	}
	excess := total - maxArchived
	if excess <= 0 {
		return 0, nil
	}
	if excess > len(candidates) {
		excess = len(candidates)
	}
	if excess == 0 {
		return 0, nil
	}

	rank := map[Importance]int{ImportanceLow: 0, ImportanceMedium: 1}
	sort.SliceStable(candidates, func(a, b int) bool {
		ea, eb := m.entries[candidates[a]], m.entries[candidates[b]]
		if rank[ea.Importance] != rank[eb.Importance] {
			return rank[ea.Importance] < rank[eb.Importance]
		}
		return ea.Timestamp.Before(eb.Timestamp)
	})

	drop := make(map[string]bool, excess)
	for _, idx := range candidates[:excess] {
		drop[m.entries[idx].ID] = true
	}

	kept := m.entries[:0]
	for _, e := range m.entries {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	m.entries = kept

	log.Printf("[LONGTERM] Pruned %d archived entries", excess)
	return excess, m.save(ctx)
}

// Clear removes every entry and persists.
func (m *LongTermMemory) Clear(ctx context.Context) error {
	m.entries = nil
	return m.save(ctx)
}

// Import replaces all entries and persists.
func (m *LongTermMemory) Import(ctx context.Context, entries []Entry) error {
	m.entries = append([]Entry(nil), entries...)
	return m.save(ctx)
}
