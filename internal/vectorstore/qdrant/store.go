package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/recall/internal/core"
)

// Store talks to the Qdrant REST API. Point IDs are deterministic UUIDs
// derived from the content-addressed fact key, since Qdrant only accepts
// UUID or integer point IDs.
type Store struct {
	baseURL    string
	collection string
	httpClient *http.Client
	dims       int
}

func NewStore(ctx context.Context, baseURL, collection string, dims int) (*Store, error) {
	s := &Store{
		baseURL:    baseURL,
		collection: collection,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dims: dims,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/collections/"+s.collection, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dims,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, "/collections/"+s.collection, body, nil)
}

func pointID(factID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(factID)).String()
}

func ownerFilter(filters core.FactFilters) map[string]any {
	must := []map[string]any{
		{"key": "user_id", "match": map[string]any{"value": filters.UserID}},
	}
	if filters.SessionID != "" {
		must = append(must, map[string]any{
			"key": "session_id", "match": map[string]any{"value": filters.SessionID},
		})
	}
	return map[string]any{"must": must}
}

func (s *Store) Upsert(ctx context.Context, fact core.MemoryFact, embedding []float32) error {
	body := map[string]any{
		"points": []map[string]any{
			{
				"id":     pointID(fact.ID),
				"vector": embedding,
				"payload": map[string]any{
					"fact_id":    fact.ID,
					"content":    fact.Text,
					"user_id":    fact.UserID,
					"session_id": fact.SessionID,
					"created_at": fact.CreatedAt.UTC().Format(time.RFC3339Nano),
				},
			},
		},
	}
	return s.do(ctx, http.MethodPut, "/collections/"+s.collection+"/points?wait=true", body, nil)
}

func (s *Store) Search(ctx context.Context, embedding []float32, filters core.FactFilters, limit int) ([]core.MemoryFact, error) {
	if limit < 1 {
		return nil, nil
	}

	body := map[string]any{
		"vector":       embedding,
		"limit":        limit,
		"with_payload": true,
		"filter":       ownerFilter(filters),
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/search", body, &resp); err != nil {
		return nil, err
	}

	facts := make([]core.MemoryFact, 0, len(resp.Result))
	for _, r := range resp.Result {
		fact := factFromPayload(r.Payload)
		fact.Score = r.Score
		facts = append(facts, fact)
	}

	sort.SliceStable(facts, func(i, j int) bool {
		if facts[i].Score != facts[j].Score {
			return facts[i].Score > facts[j].Score
		}
		return facts[i].CreatedAt.After(facts[j].CreatedAt)
	})

	return facts, nil
}

func (s *Store) List(ctx context.Context, filters core.FactFilters, limit int) ([]core.MemoryFact, error) {
	if limit <= 0 {
		limit = 1000
	}
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"filter":       ownerFilter(filters),
	}

	var resp struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/scroll", body, &resp); err != nil {
		return nil, err
	}

	facts := make([]core.MemoryFact, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		facts = append(facts, factFromPayload(p.Payload))
	}

	sort.Slice(facts, func(i, j int) bool {
		return facts[i].CreatedAt.After(facts[j].CreatedAt)
	})

	return facts, nil
}

func (s *Store) DeleteByOwner(ctx context.Context, filters core.FactFilters) (int, error) {
	countBody := map[string]any{
		"filter": ownerFilter(filters),
		"exact":  true,
	}
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/count", countBody, &countResp); err != nil {
		return 0, err
	}
	if countResp.Result.Count == 0 {
		return 0, nil
	}

	deleteBody := map[string]any{
		"filter": ownerFilter(filters),
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/delete?wait=true", deleteBody, nil); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

func (s *Store) Close() error {
	return nil
}

func factFromPayload(payload map[string]any) core.MemoryFact {
	str := func(key string) string {
		v, _ := payload[key].(string)
		return v
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, str("created_at"))
	return core.MemoryFact{
		ID:        str("fact_id"),
		Text:      str("content"),
		UserID:    str("user_id"),
		SessionID: str("session_id"),
		CreatedAt: createdAt,
	}
}

func (s *Store) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
