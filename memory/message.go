package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn held in short-term memory.
// Messages are immutable once stored; they disappear on eviction or an
// explicit clear, never by in-place mutation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker,omitempty"`
	ActorID   string    `json:"actorId,omitempty"`
}

// newID builds a prefixed id like "stm_1712345678901_1a2b3c4d".
// The millisecond timestamp keeps ids roughly sortable; the uuid fragment
// makes same-millisecond collisions a non-issue.
func newID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}
