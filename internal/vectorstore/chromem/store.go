package chromem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/sandevgo/recall/internal/core"
)

const collectionName = "facts"

// Store is the embedded vector store adapter. chromem-go keeps documents
// in process memory; a mirror index provides metadata listing and scoped
// deletes, which chromem does not expose without a query vector.
type Store struct {
	db  *chromem.DB
	col *chromem.Collection

	mu    sync.RWMutex
	facts map[string]core.MemoryFact
}

func NewStore() (*Store, error) {
	db := chromem.NewDB()

	// Embeddings are supplied explicitly, so no embedding func and the
	// default cosine distance.
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Store{
		db:    db,
		col:   col,
		facts: make(map[string]core.MemoryFact),
	}, nil
}

func (s *Store) Upsert(ctx context.Context, fact core.MemoryFact, embedding []float32) error {
	doc := chromem.Document{
		ID:        fact.ID,
		Content:   fact.Text,
		Embedding: embedding,
		Metadata: map[string]string{
			"user_id":    fact.UserID,
			"session_id": fact.SessionID,
			"created_at": fact.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.mu.Lock()
	s.facts[fact.ID] = fact
	s.mu.Unlock()

	return nil
}

func (s *Store) Search(ctx context.Context, embedding []float32, filters core.FactFilters, limit int) ([]core.MemoryFact, error) {
	if limit < 1 {
		return nil, nil
	}

	// chromem rejects nResults above the number of candidate documents,
	// so clamp against the mirror count for this scope.
	s.mu.RLock()
	total := 0
	for _, fact := range s.facts {
		if matches(fact, filters) {
			total++
		}
	}
	s.mu.RUnlock()

	n := limit
	if n > total {
		n = total
	}
	if n == 0 {
		return nil, nil
	}

	where := map[string]string{"user_id": filters.UserID}
	if filters.SessionID != "" {
		where["session_id"] = filters.SessionID
	}

	results, err := s.col.QueryEmbedding(ctx, embedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	facts := make([]core.MemoryFact, 0, len(results))
	for _, res := range results {
		createdAt, _ := time.Parse(time.RFC3339Nano, res.Metadata["created_at"])
		facts = append(facts, core.MemoryFact{
			ID:        res.ID,
			Text:      res.Content,
			UserID:    res.Metadata["user_id"],
			SessionID: res.Metadata["session_id"],
			CreatedAt: createdAt,
			Score:     float64(res.Similarity),
		})
	}

	// chromem orders by similarity; break score ties by recency.
	sort.SliceStable(facts, func(i, j int) bool {
		if facts[i].Score != facts[j].Score {
			return facts[i].Score > facts[j].Score
		}
		return facts[i].CreatedAt.After(facts[j].CreatedAt)
	})

	return facts, nil
}

func (s *Store) List(ctx context.Context, filters core.FactFilters, limit int) ([]core.MemoryFact, error) {
	s.mu.RLock()
	var facts []core.MemoryFact
	for _, fact := range s.facts {
		if !matches(fact, filters) {
			continue
		}
		facts = append(facts, fact)
	}
	s.mu.RUnlock()

	sort.Slice(facts, func(i, j int) bool {
		return facts[i].CreatedAt.After(facts[j].CreatedAt)
	})

	if limit > 0 && len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}

func (s *Store) DeleteByOwner(ctx context.Context, filters core.FactFilters) (int, error) {
	s.mu.Lock()
	var ids []string
	for id, fact := range s.facts {
		if matches(fact, filters) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(s.facts, id)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.col.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	return len(ids), nil
}

func (s *Store) Close() error {
	return nil
}

func matches(fact core.MemoryFact, filters core.FactFilters) bool {
	if filters.UserID != "" && fact.UserID != filters.UserID {
		return false
	}
	if filters.SessionID != "" && fact.SessionID != filters.SessionID {
		return false
	}
	return true
}
