package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memnexus/internal/engram"
)

func TestInsertGetRoundTrip(t *testing.T) {
	s := NewMemoryStore(nil)
	e := &engram.Engram{Content: "hello", Category: engram.CategoryFact, Importance: 0.6}
	require.NoError(t, s.Insert(context.Background(), e))
	require.NotEmpty(t, e.ID)

	got, err := s.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, engram.DecayRateForImportance(0.6), got.DecayRate)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, engram.ErrNotFound)
}

func TestNearestByVectorRanksBySimilarity(t *testing.T) {
	s := NewMemoryStore(nil)
	a := &engram.Engram{Content: "a", Embedding: []float32{1, 0}}
	b := &engram.Engram{Content: "b", Embedding: []float32{0, 1}}
	require.NoError(t, s.Insert(context.Background(), a))
	require.NoError(t, s.Insert(context.Background(), b))

	hits, err := s.NearestByVector(context.Background(), []float32{1, 0}, 10, 0, engram.Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Engram.Content)
}

func TestLexicalFallbackRequiresAllTokens(t *testing.T) {
	s := NewMemoryStore(nil)
	require.NoError(t, s.Insert(context.Background(), &engram.Engram{Content: "the quick brown fox", Importance: 0.5}))
	require.NoError(t, s.Insert(context.Background(), &engram.Engram{Content: "a slow red fox", Importance: 0.9}))

	hits, err := s.Lexical(context.Background(), "fox", 10, engram.Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0.9, hits[0].Score)

	hits, err = s.Lexical(context.Background(), "quick fox", 10, engram.Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestApplyAccessIncrementsGroupsByIncrement(t *testing.T) {
	s := NewMemoryStore(nil)
	e := &engram.Engram{Content: "x"}
	require.NoError(t, s.Insert(context.Background(), e))

	err := s.ApplyAccessIncrements(context.Background(), []engram.AccessIncrement{{IDs: []string{e.ID}, Inc: 3}})
	require.NoError(t, err)

	got, _ := s.Get(context.Background(), e.ID)
	assert.Equal(t, int64(3), got.AccessCount)
}

func TestFiltersExcludeSupersededWhenRequested(t *testing.T) {
	s := NewMemoryStore(nil)
	now := s.now()
	require.NoError(t, s.Insert(context.Background(), &engram.Engram{Content: "active"}))
	require.NoError(t, s.Insert(context.Background(), &engram.Engram{Content: "gone", SupersededAt: &now}))

	notSuperseded := false
	out, err := s.List(context.Background(), 0, engram.Filters{Superseded: &notSuperseded})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "active", out[0].Content)
}

func TestDeleteRemovesEngram(t *testing.T) {
	s := NewMemoryStore(nil)
	e := &engram.Engram{Content: "to-delete"}
	require.NoError(t, s.Insert(context.Background(), e))
	require.NoError(t, s.Delete(context.Background(), e.ID))
	_, err := s.Get(context.Background(), e.ID)
	assert.ErrorIs(t, err, engram.ErrNotFound)
}
