package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memnexus/internal/engram"
	"memnexus/internal/working"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type fakeSearcher struct {
	hits []engram.VectorHit
	err  error
}

func (f *fakeSearcher) NearestByVector(ctx context.Context, vector []float32, topK int, minSimilarity float64, filt engram.Filters) ([]engram.VectorHit, error) {
	return f.hits, f.err
}

type fakeWriter struct {
	inserted []*engram.Engram
}

func (f *fakeWriter) Insert(ctx context.Context, e *engram.Engram) error {
	f.inserted = append(f.inserted, e)
	return nil
}

func TestRunOnceSkipsLowScoringItems(t *testing.T) {
	wm := working.New()
	it := wm.Store("s1", "x", map[string]any{"importance": 0.1}, time.Hour)
	wm.MarkForConsolidation(it.ID)

	c := New(wm, &fakeEmbedder{}, &fakeWriter{}, &fakeSearcher{})
	c.MinAge = 0
	c.Now = func() time.Time { return it.CreatedAt }

	n, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunOnceDeletesPromotedFromWorkingMemory(t *testing.T) {
	wm := working.New()
	it := wm.Store("s1", "a unique novel fact about the project", map[string]any{"importance": 0.95, "access_count": 8}, time.Hour)
	wm.MarkForConsolidation(it.ID)

	w := &fakeWriter{}
	c := New(wm, &fakeEmbedder{}, w, &fakeSearcher{})
	c.MinAge = 0
	c.Now = func() time.Time { return it.CreatedAt.Add(10 * time.Minute) }

	n, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, w.inserted, 1)
	assert.Equal(t, "working_memory", w.inserted[0].Metadata["source"])

	_, ok := wm.Get(it.ID)
	assert.False(t, ok)
}

func TestNoveltyFallsBackWhenNoSimilarEngramExists(t *testing.T) {
	wm := working.New()
	c := New(wm, &fakeEmbedder{vec: []float32{1, 0}}, &fakeWriter{}, &fakeSearcher{hits: nil})

	n := c.novelty(context.Background(), working.Item{Content: "alpha beta gamma"})
	assert.Greater(t, n, 0.7)
}

func TestNoveltyLowWhenHighlySimilarEngramExists(t *testing.T) {
	wm := working.New()
	c := New(wm, &fakeEmbedder{vec: []float32{1, 0}}, &fakeWriter{},
		&fakeSearcher{hits: []engram.VectorHit{{Similarity: 0.99}}})

	n := c.novelty(context.Background(), working.Item{Content: "repeat repeat repeat"})
	assert.Less(t, n, 0.3)
}

func TestScoreIsClampedToUnitRange(t *testing.T) {
	wm := working.New()
	c := New(wm, &fakeEmbedder{}, &fakeWriter{}, &fakeSearcher{})
	it := working.Item{CreatedAt: time.Now().Add(-time.Hour), Metadata: map[string]any{"importance": 1.0, "access_count": 999}}
	s := c.score(context.Background(), it, time.Now())
	assert.LessOrEqual(t, s, 1.0)
	assert.GreaterOrEqual(t, s, 0.0)
}
