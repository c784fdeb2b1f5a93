package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chroniclekeeper/chronicle/settings"
)

const settingShortTerm = "shortTermMemory"

// DefaultShortTermSize is the ring-buffer capacity when none is configured.
const DefaultShortTermSize = 50

// ShortTermMemory is a fixed-capacity buffer of the most recent
// conversation turns. Adding beyond capacity silently drops the oldest
// messages; eviction is normal operation, not an error.
//
// Every mutation persists to the settings store before returning. The
// in-memory slice stays authoritative when a write fails: the error is
// returned so the caller can warn that a restart may lose the delta, but
// the mutation itself is never rolled back.
type ShortTermMemory struct {
	store    settings.Store
	messages []Message
	maxSize  int
}

// NewShortTermMemory creates an empty buffer persisting to store.
// maxSize <= 0 uses DefaultShortTermSize.
func NewShortTermMemory(store settings.Store, maxSize int) *ShortTermMemory {
	if maxSize <= 0 {
		maxSize = DefaultShortTermSize
	}
	return &ShortTermMemory{store: store, maxSize: maxSize}
}

// Load restores the buffer from the settings store.
func (m *ShortTermMemory) Load(ctx context.Context) error {
	var messages []Message
	err := m.store.Get(ctx, settingShortTerm, &messages)
	if errors.Is(err, settings.ErrNotFound) {
		m.messages = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("load short-term memory: %w", err)
	}
	m.messages = messages
	log.Printf("[SHORTTERM] Loaded %d messages", len(m.messages))
	return nil
}

func (m *ShortTermMemory) save(ctx context.Context) error {
	if err := m.store.Set(ctx, settingShortTerm, m.messages); err != nil {
		log.Printf("[SHORTTERM] Save failed (in-memory state still authoritative): %v", err)
		return fmt.Errorf("save short-term memory: %w", err)
	}
	return nil
}

// Save persists the buffer immediately.
func (m *ShortTermMemory) Save(ctx context.Context) error {
	return m.save(ctx)
}

// Size returns the current message count.
func (m *ShortTermMemory) Size() int {
	return len(m.messages)
}

// MaxSize returns the buffer capacity.
func (m *ShortTermMemory) MaxSize() int {
	return m.maxSize
}

// SetMaxSize changes the capacity, truncating immediately if the buffer
// already exceeds it.
func (m *ShortTermMemory) SetMaxSize(size int) {
	if size <= 0 {
		return
	}
	m.maxSize = size
	if len(m.messages) > m.maxSize {
		m.messages = m.messages[len(m.messages)-m.maxSize:]
	}
}

// Add appends msg, generating an id and timestamp when absent, evicts
// beyond capacity, and persists. Returns the stored message.
func (m *ShortTermMemory) Add(ctx context.Context, msg Message) (Message, error) {
	stored := msg
	if stored.ID == "" {
		stored.ID = newID("stm")
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}

	m.messages = append(m.messages, stored)
	if len(m.messages) > m.maxSize {
		m.messages = m.messages[len(m.messages)-m.maxSize:]
	}

	return stored, m.save(ctx)
}

// GetRecent returns the last count messages in chronological order.
// The result is a copy, not a live view.
func (m *ShortTermMemory) GetRecent(count int) []Message {
	if count <= 0 || count > len(m.messages) {
		count = len(m.messages)
	}
	out := make([]Message, count)
	copy(out, m.messages[len(m.messages)-count:])
	return out
}

// GetAll returns a copy of the full buffer in chronological order.
func (m *ShortTermMemory) GetAll() []Message {
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// RemoveOldest drops the count oldest messages and persists.
func (m *ShortTermMemory) RemoveOldest(ctx context.Context, count int) error {
	if count <= 0 {
		return nil
	}
	if count > len(m.messages) {
		count = len(m.messages)
	}
	m.messages = append([]Message(nil), m.messages[count:]...)
	return m.save(ctx)
}

// Clear empties the buffer and persists.
func (m *ShortTermMemory) Clear(ctx context.Context) error {
	m.messages = nil
	return m.save(ctx)
}

// Import replaces the buffer contents and persists.
func (m *ShortTermMemory) Import(ctx context.Context, messages []Message) error {
	m.messages = append([]Message(nil), messages...)
	return m.save(ctx)
}

// MessageMatch is a search hit with its relevance score.
type MessageMatch struct {
	Message
	Score float64
}

// Search returns every message whose content contains query
// (case-insensitive), scored by the fraction of query words present.
// All substring matches are returned regardless of score.
func (m *ShortTermMemory) Search(query string) []MessageMatch {
	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	var results []MessageMatch
	for _, msg := range m.messages {
		contentLower := strings.ToLower(msg.Content)
		if !strings.Contains(contentLower, queryLower) {
			continue
		}
		matches := 0
		for _, w := range queryWords {
			if strings.Contains(contentLower, w) {
				matches++
			}
		}
		score := 0.0
		if len(queryWords) > 0 {
			score = float64(matches) / float64(len(queryWords))
		}
		results = append(results, MessageMatch{Message: msg, Score: score})
	}
	return results
}
