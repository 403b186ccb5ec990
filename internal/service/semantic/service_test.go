package semantic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/providers/embed"
	"github.com/sandevgo/recall/internal/vectorstore/chromem"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	store, err := chromem.NewStore()
	require.NoError(t, err)
	return NewService(store, embed.NewMock(), time.Second)
}

func TestUpsertFact_RequiresUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.UpsertFact(context.Background(), "some fact", "", "s1")
	assert.Error(t, err)
}

func TestUpsertFact_Idempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.UpsertFact(ctx, "User's name is Sean.", "u1", "s1")
	require.NoError(t, err)
	second, err := svc.UpsertFact(ctx, "  user's name is  sean ", "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	facts, err := svc.ListSessionFacts(ctx, "s1", "u1", 0)
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestSearch_ScopeBoundaries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertFact(ctx, "User's name is Sean", "u1", "s1")
	require.NoError(t, err)
	_, err = svc.UpsertFact(ctx, "User works at a coffee shop", "u1", "s2")
	require.NoError(t, err)
	_, err = svc.UpsertFact(ctx, "User's name is Alex", "u2", "s3")
	require.NoError(t, err)

	// User-wide search reaches both of u1's sessions but never u2.
	facts, err := svc.Search(ctx, "what is the user's name", core.FactFilters{UserID: "u1"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, facts)
	assert.Equal(t, "User's name is Sean", facts[0].Text)
	for _, f := range facts {
		assert.Equal(t, "u1", f.UserID)
	}

	// Session-scoped search does not see other sessions.
	facts, err = svc.Search(ctx, "what is the user's name", core.FactFilters{UserID: "u1", SessionID: "s2"}, 10)
	require.NoError(t, err)
	for _, f := range facts {
		assert.Equal(t, "s2", f.SessionID)
	}

	_, err = svc.Search(ctx, "anything", core.FactFilters{}, 10)
	assert.Error(t, err)
}

func TestSearch_EmptyStore(t *testing.T) {
	svc := newTestService(t)

	facts, err := svc.Search(context.Background(), "anything", core.FactFilters{UserID: "u1"}, 10)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

// slowStore blocks Search until the caller's context expires.
type slowStore struct {
	core.FactStore
}

func (s *slowStore) Search(ctx context.Context, embedding []float32, filters core.FactFilters, limit int) ([]core.MemoryFact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSearch_DeadlineExceeded(t *testing.T) {
	inner, err := chromem.NewStore()
	require.NoError(t, err)
	svc := NewService(&slowStore{FactStore: inner}, embed.NewMock(), 20*time.Millisecond)

	start := time.Now()
	_, err = svc.Search(context.Background(), "anything", core.FactFilters{UserID: "u1"}, 10)
	assert.ErrorIs(t, err, core.ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDeleteByOwner_ReportsCount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertFact(ctx, "fact one", "u1", "s1")
	require.NoError(t, err)
	_, err = svc.UpsertFact(ctx, "fact two", "u1", "s1")
	require.NoError(t, err)

	n, err := svc.DeleteByOwner(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.DeleteByOwner(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListUserFacts_NewestFirst(t *testing.T) {
	store, err := chromem.NewStore()
	require.NoError(t, err)

	now := time.Now().UTC()
	svc := NewService(store, embed.NewMock(), time.Second).
		WithClock(func() time.Time { now = now.Add(time.Minute); return now })
	ctx := context.Background()

	_, err = svc.UpsertFact(ctx, "older fact", "u1", "s1")
	require.NoError(t, err)
	_, err = svc.UpsertFact(ctx, "newer fact", "u1", "s2")
	require.NoError(t, err)

	facts, err := svc.ListUserFacts(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "newer fact", facts[0].Text)
}
