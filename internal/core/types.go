package core

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session statuses. Deletion is a status change; rows stay until an
// explicit purge.
const (
	SessionActive   = "active"
	SessionInactive = "inactive"
	SessionArchived = "archived"
	SessionDeleted  = "deleted"
)

type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int       `json:"message_count"`
}

// Message is one transcript turn. Immutable once written; ordering within a
// session is by Seq.
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Seq       int64             `json:"seq"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// MemoryFact is a short extracted statement kept for long-term recall.
// ID is derived from the normalized text plus the owning (user, session)
// pair, so re-extracting identical content refreshes instead of duplicating.
type MemoryFact struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	// Score is populated on search results only, never stored.
	Score float64 `json:"score,omitempty"`
}

type ContextEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextBundle is the ordered context assembled for one LLM call.
// Constructed fresh per query, never persisted.
type ContextBundle struct {
	Entries []ContextEntry `json:"entries"`
	// Degraded is set when long-term memory was skipped because the
	// semantic store was slow or unavailable.
	Degraded bool `json:"degraded"`
	// TranscriptCount and FactCount describe the post-bounding split.
	TranscriptCount int `json:"transcript_count"`
	FactCount       int `json:"fact_count"`
}
