// Package vector provides semantic retrieval over memory content.
//
// Entries and their embeddings live in plain maps that persist through
// the settings store; a chromem-go collection mirrors the embedded
// subset and does the cosine ranking. When the embedding provider is
// down, entries are still stored and a keyword scorer answers queries,
// so retrieval degrades instead of failing.
package vector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/chroniclekeeper/chronicle/provider"
	"github.com/chroniclekeeper/chronicle/settings"
)

const settingEmbeddings = "embeddings"

// flushInterval is how many insertions pass between persistence writes.
// Embeddings are bulky, so writing on every insert would hammer the
// settings store; the cost is that a crash can lose up to nine
// unflushed insertions. Load and explicit Flush close the window.
const flushInterval = 10

const collectionName = "memories"

// Entry is one retrievable piece of text.
type Entry struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Match is a search hit with its relevance score. Semantic hits carry
// cosine similarity; keyword-fallback hits carry the substring score.
type Match struct {
	Entry
	Score float64
}

// Store holds entries with their embeddings and ranks them by cosine
// similarity, falling back to keyword matching when embeddings are
// missing or the provider is down.
type Store struct {
	store      settings.Store
	provider   provider.Provider
	embedModel string

	db         *chromem.DB
	collection *chromem.Collection

	entries    map[string]Entry
	embeddings map[string][]float32
	insertions int
}

// New creates an empty vector store. embedModel names the embedding
// model passed to the provider.
func New(st settings.Store, p provider.Provider, embedModel string) (*Store, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Store{
		store:      st,
		provider:   p,
		embedModel: embedModel,
		db:         db,
		collection: col,
		entries:    make(map[string]Entry),
		embeddings: make(map[string][]float32),
	}, nil
}

// persisted is the wire shape of the store in the settings document.
type persisted struct {
	Entries    map[string]Entry     `json:"entries"`
	Embeddings map[string][]float32 `json:"embeddings"`
}

// Load restores entries and embeddings and repopulates the ranking
// collection.
func (s *Store) Load(ctx context.Context) error {
	var data persisted
	err := s.store.Get(ctx, settingEmbeddings, &data)
	if errors.Is(err, settings.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load vector store: %w", err)
	}

	s.entries = data.Entries
	s.embeddings = data.Embeddings
	if s.entries == nil {
		s.entries = make(map[string]Entry)
	}
	if s.embeddings == nil {
		s.embeddings = make(map[string][]float32)
	}

	for id, emb := range s.embeddings {
		entry, ok := s.entries[id]
		if !ok {
			delete(s.embeddings, id)
			continue
		}
		if err := s.collection.AddDocument(ctx, chromem.Document{
			ID:        id,
			Content:   entry.Content,
			Embedding: emb,
			Metadata:  entry.Metadata,
		}); err != nil {
			log.Printf("[VECTOR] Skipping document %s on load: %v", id, err)
		}
	}

	log.Printf("[VECTOR] Loaded %d entries (%d embedded)", len(s.entries), len(s.embeddings))
	return nil
}

// Flush persists entries and embeddings immediately.
func (s *Store) Flush(ctx context.Context) error {
	data := persisted{Entries: s.entries, Embeddings: s.embeddings}
	if err := s.store.Set(ctx, settingEmbeddings, data); err != nil {
		log.Printf("[VECTOR] Flush failed (in-memory state still authoritative): %v", err)
		return fmt.Errorf("flush vector store: %w", err)
	}
	return nil
}

// Size returns the number of stored entries.
func (s *Store) Size() int {
	return len(s.entries)
}

// EmbeddedCount returns how many entries have embeddings.
func (s *Store) EmbeddedCount() int {
	return len(s.embeddings)
}

// AddEntry stores content under id. Embedding failure is not fatal:
// the entry is kept for keyword fallback and the failure is logged.
func (s *Store) AddEntry(ctx context.Context, id, content string, metadata map[string]string) error {
	entry := Entry{
		ID:        id,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	s.entries[id] = entry

	// Drop any embedding of a previous version of this id so a failed
	// re-embed cannot leave a vector for content that no longer exists.
	if _, existed := s.embeddings[id]; existed {
		delete(s.embeddings, id)
		if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
			log.Printf("[VECTOR] Failed to drop stale index for %s: %v", id, err)
		}
	}

	emb, err := s.provider.Embed(ctx, s.embedModel, content)
	if err != nil {
		if provider.Recoverable(err) {
			log.Printf("[VECTOR] Embedding unavailable for %s, keyword fallback only: %v", id, err)
		} else {
			log.Printf("[VECTOR] Embedding failed for %s: %v", id, err)
		}
	} else {
		s.embeddings[id] = emb
		if err := s.collection.AddDocument(ctx, chromem.Document{
			ID:        id,
			Content:   content,
			Embedding: emb,
			Metadata:  metadata,
		}); err != nil {
			log.Printf("[VECTOR] Failed to index %s: %v", id, err)
		}
	}

	s.insertions++
	if s.insertions%flushInterval == 0 {
		return s.Flush(ctx)
	}
	return nil
}

// Search returns up to limit entries relevant to the query, best first.
// Cosine ranking is used when the query can be embedded; otherwise the
// keyword scorer answers.
func (s *Store) Search(ctx context.Context, query string, limit int) []Match {
	if limit <= 0 {
		limit = 5
	}
	if len(s.entries) == 0 {
		return nil
	}

	queryEmb, err := s.provider.Embed(ctx, s.embedModel, query)
	if err != nil || len(s.embeddings) == 0 {
		if err != nil && !provider.Recoverable(err) {
			log.Printf("[VECTOR] Query embedding failed: %v", err)
		}
		return s.keywordSearch(query, limit)
	}

	// chromem rejects nResults larger than the collection, so walk the
	// limit down until the query succeeds.
	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		results, err = s.collection.QueryEmbedding(ctx, queryEmb, n, nil, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				return s.keywordSearch(query, limit)
			}
			continue
		}
		log.Printf("[VECTOR] Query failed, keyword fallback: %v", err)
		return s.keywordSearch(query, limit)
	}

	var matches []Match
	for _, r := range results {
		entry, ok := s.entries[r.ID]
		if !ok {
			continue
		}
		matches = append(matches, Match{Entry: entry, Score: float64(r.Similarity)})
	}
	return matches
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// keywordSearch scores entries by substring: 0.5 for containing the
// whole query plus 0.2 per query word found. Anything above zero is a
// hit.
func (s *Store) keywordSearch(query string, limit int) []Match {
	queryLower := strings.ToLower(query)
	words := strings.Fields(queryLower)

	var matches []Match
	for _, entry := range s.entries {
		contentLower := strings.ToLower(entry.Content)

		score := 0.0
		if strings.Contains(contentLower, queryLower) {
			score += 0.5
		}
		for _, w := range words {
			if strings.Contains(contentLower, w) {
				score += 0.2
			}
		}
		if score > 0 {
			matches = append(matches, Match{Entry: entry, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Remove deletes the entry with the given id.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, ok := s.entries[id]; !ok {
		return nil
	}
	delete(s.entries, id)
	if _, ok := s.embeddings[id]; ok {
		delete(s.embeddings, id)
		if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
			log.Printf("[VECTOR] Failed to unindex %s: %v", id, err)
		}
	}
	return s.Flush(ctx)
}

// Clear removes every entry and persists the empty state.
func (s *Store) Clear(ctx context.Context) error {
	s.entries = make(map[string]Entry)
	s.embeddings = make(map[string][]float32)
	s.insertions = 0
	if err := s.resetCollection(); err != nil {
		return err
	}
	return s.Flush(ctx)
}

func (s *Store) resetCollection() error {
	if err := s.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := s.db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	s.collection = col
	return nil
}

// Rebuild re-embeds every entry, replacing stale vectors. Used after
// imports and embedding model changes. Entries that fail to embed stay
// on keyword fallback.
func (s *Store) Rebuild(ctx context.Context) error {
	if err := s.resetCollection(); err != nil {
		return err
	}
	s.embeddings = make(map[string][]float32)

	embedded := 0
	for id, entry := range s.entries {
		emb, err := s.provider.Embed(ctx, s.embedModel, entry.Content)
		if err != nil {
			log.Printf("[VECTOR] Rebuild: embedding failed for %s: %v", id, err)
			continue
		}
		s.embeddings[id] = emb
		if err := s.collection.AddDocument(ctx, chromem.Document{
			ID:        id,
			Content:   entry.Content,
			Embedding: emb,
			Metadata:  entry.Metadata,
		}); err != nil {
			log.Printf("[VECTOR] Rebuild: failed to index %s: %v", id, err)
		}
		embedded++
	}

	log.Printf("[VECTOR] Rebuilt index: %d/%d entries embedded", embedded, len(s.entries))
	return s.Flush(ctx)
}

// Entries returns a copy of every stored entry.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// Import replaces all entries, drops stale embeddings, and re-embeds.
func (s *Store) Import(ctx context.Context, entries []Entry) error {
	s.entries = make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now()
		}
		s.entries[e.ID] = e
	}
	s.insertions = 0
	return s.Rebuild(ctx)
}
