package novelty

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memnexus/internal/engram"
)

type fakeSearcher struct {
	hits []engram.VectorHit
}

func (f *fakeSearcher) NearestByVector(ctx context.Context, vector []float32, topK int, minSimilarity float64, filt engram.Filters) ([]engram.VectorHit, error) {
	return f.hits, nil
}

func TestClassifyDisabledAlwaysNew(t *testing.T) {
	c := New(&fakeSearcher{hits: []engram.VectorHit{{Engram: engram.Engram{ID: "x"}, Similarity: 0.99}}}, false)
	out, err := c.Classify(context.Background(), []float32{1, 0}, engram.CategoryFact, "", 5)
	require.NoError(t, err)
	assert.Equal(t, KindNew, out.Kind)
}

func TestClassifyRedundantAboveThreshold(t *testing.T) {
	f := &fakeSearcher{hits: []engram.VectorHit{{Engram: engram.Engram{ID: "dup"}, Similarity: 0.97}}}
	c := New(f, true)
	out, err := c.Classify(context.Background(), []float32{1, 0}, engram.CategoryFact, "", 5)
	require.NoError(t, err)
	require.Equal(t, KindRedundant, out.Kind)
	assert.Equal(t, "dup", out.Redundant.ID)
}

func TestClassifyAmbiguousBand(t *testing.T) {
	f := &fakeSearcher{hits: []engram.VectorHit{
		{Engram: engram.Engram{ID: "a"}, Similarity: 0.85},
		{Engram: engram.Engram{ID: "b"}, Similarity: 0.60},
	}}
	c := New(f, true)
	out, err := c.Classify(context.Background(), []float32{1, 0}, engram.CategoryFact, "", 5)
	require.NoError(t, err)
	require.Equal(t, KindAmbiguous, out.Kind)
	require.Len(t, out.Ambiguous, 1)
	assert.Equal(t, "a", out.Ambiguous[0].Engram.ID)
}

func TestClassifyNewWhenNoCandidates(t *testing.T) {
	c := New(&fakeSearcher{}, true)
	out, err := c.Classify(context.Background(), []float32{1, 0}, engram.CategoryFact, "", 5)
	require.NoError(t, err)
	assert.Equal(t, KindNew, out.Kind)
}

func TestClassifyDefaultThresholdForUnlistedCategory(t *testing.T) {
	f := &fakeSearcher{hits: []engram.VectorHit{{Engram: engram.Engram{ID: "p"}, Similarity: 0.93}}}
	c := New(f, true)
	out, err := c.Classify(context.Background(), []float32{1, 0}, engram.CategoryProcedure, "", 5)
	require.NoError(t, err)
	assert.Equal(t, KindRedundant, out.Kind)
}
