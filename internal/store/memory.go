// Package store provides Engram Store (C1) implementations: an in-memory
// reference backend for tests and small deployments, and a Postgres backend
// combining pgvector similarity search with full-text search, grounded on
// the teacher's persistence/databases/memory_vector.go,
// memory_search.go, postgres_vector.go, and postgres_search.go.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"memnexus/internal/engram"
	"memnexus/internal/graphclient"
	"memnexus/internal/retrieve"
)

// MemoryStore is an in-process map-backed Store with linear-scan similarity
// search, grounded on persistence/databases/memory_vector.go /
// memory_search.go.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*engram.Engram
	graph graphclient.Client
	now   func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore. graph may be nil, in which
// case Connections always returns 0.
func NewMemoryStore(graph graphclient.Client) *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*engram.Engram),
		graph: graph,
		now:   time.Now,
	}
}

func (s *MemoryStore) Insert(ctx context.Context, e *engram.Engram) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ProjectID == "" {
		e.ProjectID = engram.DefaultProjectID
	}
	if e.OriginalImportance == 0 {
		e.OriginalImportance = e.Importance
	}
	if e.DecayRate == 0 {
		e.DecayRate = engram.DecayRateForImportance(e.Importance)
	}
	now := s.now()
	if e.InsertedAt.IsZero() {
		e.InsertedAt = now
	}
	e.UpdatedAt = now
	if e.LastAccessedAt.IsZero() {
		e.LastAccessedAt = now
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}

	cp := *e
	s.byID[e.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*engram.Engram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, engram.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, e *engram.Engram) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[e.ID]; !ok {
		return engram.ErrNotFound
	}
	e.UpdatedAt = s.now()
	cp := *e
	s.byID[e.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) ApplyAccessIncrements(ctx context.Context, batches []engram.AccessIncrement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, batch := range batches {
		for _, id := range batch.IDs {
			if e, ok := s.byID[id]; ok {
				e.AccessCount += batch.Inc
				e.LastAccessedAt = now
			}
		}
	}
	return nil
}

func matchesFilters(e *engram.Engram, f engram.Filters) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.ProjectID != "" && e.ProjectID != f.ProjectID {
		return false
	}
	if f.Superseded != nil {
		superseded := e.SupersededAt != nil
		if superseded != *f.Superseded {
			return false
		}
	}
	if len(f.Tags) > 0 {
		tagSet := make(map[string]struct{}, len(e.Tags))
		for _, t := range e.Tags {
			tagSet[t] = struct{}{}
		}
		for _, want := range f.Tags {
			if _, ok := tagSet[want]; !ok {
				return false
			}
		}
	}
	if !f.InsertedFrom.IsZero() && e.InsertedAt.Before(f.InsertedFrom) {
		return false
	}
	if !f.InsertedTo.IsZero() && e.InsertedAt.After(f.InsertedTo) {
		return false
	}
	return true
}

func (s *MemoryStore) NearestByVector(ctx context.Context, vector []float32, topK int, minSimilarity float64, f engram.Filters) ([]engram.VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []engram.VectorHit
	for _, e := range s.byID {
		if !matchesFilters(e, f) || len(e.Embedding) == 0 {
			continue
		}
		sim := retrieve.CosineSimilarity(vector, e.Embedding)
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, engram.VectorHit{Engram: *e, Similarity: sim})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func tokenize(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}

func (s *MemoryStore) Lexical(ctx context.Context, query string, limit int, f engram.Filters) ([]engram.LexicalHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	var hits []engram.LexicalHit
	for _, e := range s.byID {
		if !matchesFilters(e, f) {
			continue
		}
		contentLower := strings.ToLower(e.Content)
		matched := true
		for _, tok := range queryTokens {
			if !strings.Contains(contentLower, tok) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		hits = append(hits, engram.LexicalHit{Engram: *e, Score: e.Importance})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int, f engram.Filters) ([]engram.Engram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []engram.Engram
	for _, e := range s.byID {
		if !matchesFilters(e, f) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InsertedAt.After(out[j].InsertedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, limit int, f engram.Filters) ([]engram.Engram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []engram.Engram
	for _, e := range s.byID {
		if !matchesFilters(e, f) {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Connections(ctx context.Context, id string) (int, error) {
	if s.graph == nil {
		return 0, nil
	}
	return s.graph.CountConnections(ctx, id)
}

func (s *MemoryStore) Close() error { return nil }
