package chromem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/providers/embed"
)

func addFact(t *testing.T, s *Store, text, userID, sessionID string, createdAt time.Time) core.MemoryFact {
	t.Helper()

	fact := core.MemoryFact{
		ID:        core.FactKey(text, userID, sessionID),
		Text:      text,
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: createdAt,
	}
	vec, err := embed.NewMock().Embed(context.Background(), text)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(context.Background(), fact, vec))
	return fact
}

func search(t *testing.T, s *Store, query string, filters core.FactFilters, limit int) []core.MemoryFact {
	t.Helper()

	vec, err := embed.NewMock().Embed(context.Background(), query)
	require.NoError(t, err)
	facts, err := s.Search(context.Background(), vec, filters, limit)
	require.NoError(t, err)
	return facts
}

func TestStore_UpsertIdempotent(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	now := time.Now().UTC()
	addFact(t, s, "user likes espresso", "u1", "s1", now)
	addFact(t, s, "user likes espresso", "u1", "s1", now.Add(time.Minute))

	facts, err := s.List(context.Background(), core.FactFilters{UserID: "u1"}, 0)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	// Re-upsert refreshed the timestamp instead of duplicating.
	assert.Equal(t, now.Add(time.Minute), facts[0].CreatedAt)
}

func TestStore_SearchScopedToSession(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	now := time.Now().UTC()
	addFact(t, s, "user name is Sean", "u1", "s1", now)
	addFact(t, s, "user name is Alex", "u2", "s2", now)

	facts := search(t, s, "what is the user name", core.FactFilters{UserID: "u1", SessionID: "s1"}, 10)
	require.Len(t, facts, 1)
	assert.Equal(t, "user name is Sean", facts[0].Text)
	assert.Greater(t, facts[0].Score, 0.0)

	facts = search(t, s, "what is the user name", core.FactFilters{UserID: "u1", SessionID: "s2"}, 10)
	assert.Empty(t, facts)
}

func TestStore_SearchAcrossSessions(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	now := time.Now().UTC()
	addFact(t, s, "user works at an espresso bar", "u1", "s1", now)
	addFact(t, s, "user prefers dark roast espresso", "u1", "s2", now)

	facts := search(t, s, "espresso", core.FactFilters{UserID: "u1"}, 10)
	assert.Len(t, facts, 2)
}

func TestStore_SearchEmptyCollection(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	facts := search(t, s, "anything", core.FactFilters{UserID: "u1"}, 10)
	assert.Empty(t, facts)
}

func TestStore_SearchLimitClamped(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	now := time.Now().UTC()
	addFact(t, s, "fact one about espresso", "u1", "s1", now)
	addFact(t, s, "fact two about espresso", "u1", "s1", now)

	// Limit far above collection size must not error.
	facts := search(t, s, "espresso", core.FactFilters{UserID: "u1"}, 100)
	assert.Len(t, facts, 2)
}

func TestStore_DeleteByOwner(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	now := time.Now().UTC()
	addFact(t, s, "session one fact", "u1", "s1", now)
	addFact(t, s, "another session one fact", "u1", "s1", now)
	addFact(t, s, "session two fact", "u1", "s2", now)

	deleted, err := s.DeleteByOwner(context.Background(), core.FactFilters{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	facts, err := s.List(context.Background(), core.FactFilters{UserID: "u1"}, 0)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "s2", facts[0].SessionID)

	// Deleting the same scope again removes nothing.
	deleted, err = s.DeleteByOwner(context.Background(), core.FactFilters{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
