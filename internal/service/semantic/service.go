package semantic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

// Service is the semantic memory store: it owns fact identity, embedding,
// and the per-call search deadline in front of the vector store adapter.
type Service struct {
	store    core.FactStore
	embedder core.Embedder
	deadline time.Duration
	clock    core.Clock
}

func NewService(store core.FactStore, embedder core.Embedder, deadline time.Duration) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		deadline: deadline,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source.
func (s *Service) WithClock(clock core.Clock) *Service {
	s.clock = clock
	return s
}

// UpsertFact stores text under its content-derived key. Re-upserting
// identical content for the same (user, session) refreshes the timestamp
// instead of creating a second fact.
func (s *Service) UpsertFact(ctx context.Context, text, userID, sessionID string) (*core.MemoryFact, error) {
	if userID == "" {
		return nil, errors.New("fact upsert requires a user id")
	}

	fact := core.MemoryFact{
		ID:        core.FactKey(text, userID, sessionID),
		Text:      text,
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: s.clock(),
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed fact: %w", err)
	}

	if err := s.store.Upsert(ctx, fact, embedding); err != nil {
		return nil, fmt.Errorf("upsert fact: %w", err)
	}

	log.FromCtx(ctx).Debug().
		Str("fact_id", fact.ID).
		Str("session_id", sessionID).
		Msg("fact upserted")

	return &fact, nil
}

// Search returns the top facts for the query under the given scope,
// ordered by descending score. The owning-user boundary is absolute: an
// empty UserID is rejected rather than widened. The call runs under the
// configured deadline and reports ErrDeadlineExceeded instead of hanging.
func (s *Service) Search(ctx context.Context, query string, filters core.FactFilters, limit int) ([]core.MemoryFact, error) {
	if filters.UserID == "" {
		return nil, errors.New("fact search requires a user id")
	}

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.ErrDeadlineExceeded
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	facts, err := s.store.Search(ctx, embedding, filters, limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.ErrDeadlineExceeded
		}
		return nil, fmt.Errorf("search facts: %w", err)
	}

	return facts, nil
}

// ListSessionFacts returns a session's facts, newest first.
func (s *Service) ListSessionFacts(ctx context.Context, sessionID, userID string, limit int) ([]core.MemoryFact, error) {
	return s.store.List(ctx, core.FactFilters{UserID: userID, SessionID: sessionID}, limit)
}

// ListUserFacts returns all facts owned by the user across sessions,
// newest first.
func (s *Service) ListUserFacts(ctx context.Context, userID string, limit int) ([]core.MemoryFact, error) {
	return s.store.List(ctx, core.FactFilters{UserID: userID}, limit)
}

// DeleteByOwner removes every fact in the given scope and reports how many
// were removed. Deleting an already-empty scope is not an error.
func (s *Service) DeleteByOwner(ctx context.Context, sessionID, userID string) (int, error) {
	n, err := s.store.DeleteByOwner(ctx, core.FactFilters{UserID: userID, SessionID: sessionID})
	if err != nil {
		return 0, fmt.Errorf("delete facts: %w", err)
	}

	log.FromCtx(ctx).Info().
		Str("session_id", sessionID).
		Int("deleted", n).
		Msg("session facts deleted")

	return n, nil
}
