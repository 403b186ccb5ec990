package core

import (
	"context"
	"time"
)

// AppendOptions control session handling on the append path.
type AppendOptions struct {
	// AutoCreate creates the session (owned by UserID) when it is missing
	// instead of failing with ErrSessionNotFound.
	AutoCreate bool
	UserID     string
}

// SessionFilter narrows ListSessions. Zero value matches everything.
type SessionFilter struct {
	UserID string
	Status string
}

type TranscriptRepository interface {
	CreateSession(ctx context.Context, id, userID, title string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	SetSessionStatus(ctx context.Context, id, status string) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	// PurgeSession physically removes a session and its messages.
	PurgeSession(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]string, opts AppendOptions) (*Message, error)
	// RecentMessages returns at most limit messages, oldest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
}

// FactFilters is a conjunction over fact ownership tags. UserID is always
// required; an empty SessionID means cross-session recall for that user.
type FactFilters struct {
	UserID    string
	SessionID string
}

// FactStore is the narrow vector-store boundary. One adapter per backing
// store; selection happens at construction time.
type FactStore interface {
	// Upsert stores the fact under its content-derived ID, overwriting any
	// previous fact with the same ID.
	Upsert(ctx context.Context, fact MemoryFact, embedding []float32) error
	// Search returns facts matching filters ordered by descending score,
	// ties broken by recency.
	Search(ctx context.Context, embedding []float32, filters FactFilters, limit int) ([]MemoryFact, error)
	// List returns facts matching filters ordered by recency, no scoring.
	List(ctx context.Context, filters FactFilters, limit int) ([]MemoryFact, error)
	// DeleteByOwner removes all facts in scope. Idempotent: an empty scope
	// is not an error. Returns the number of facts removed.
	DeleteByOwner(ctx context.Context, filters FactFilters) (int, error)
	Close() error
}

// Clock is injected where timestamp determinism matters in tests.
type Clock func() time.Time
