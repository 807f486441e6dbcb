package feedback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memnexus/internal/engram"
)

type fakeStore struct {
	byID map[string]*engram.Engram
}

func newFakeStore() *fakeStore { return &fakeStore{byID: make(map[string]*engram.Engram)} }

func (f *fakeStore) Get(ctx context.Context, id string) (*engram.Engram, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, engram.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) Update(ctx context.Context, e *engram.Engram) error {
	f.byID[e.ID] = e
	return nil
}

func TestHelpfulnessDefaultsWhenAbsent(t *testing.T) {
	e := &engram.Engram{Metadata: map[string]any{}}
	assert.Equal(t, DefaultHelpfulness, Helpfulness(e))
}

func TestSignalUsefulAndNoiseClamp(t *testing.T) {
	s := newFakeStore()
	e := &engram.Engram{ID: "e1", Metadata: map[string]any{metadataHelpfulness: 0.98}}
	s.byID[e.ID] = e

	tr := New(s)
	require.NoError(t, tr.SignalUseful(context.Background(), "e1"))
	got, _ := s.Get(context.Background(), "e1")
	assert.InDelta(t, 1.0, Helpfulness(got), 1e-9)

	got.Metadata[metadataHelpfulness] = 0.01
	s.byID["e1"] = got
	require.NoError(t, tr.SignalNoise(context.Background(), "e1"))
	got2, _ := s.Get(context.Background(), "e1")
	assert.InDelta(t, 0.0, Helpfulness(got2), 1e-9)
}

func TestOnRetrievalFlushesCount(t *testing.T) {
	s := newFakeStore()
	e := &engram.Engram{ID: "e1", Metadata: map[string]any{}}
	s.byID[e.ID] = e

	tr := New(s)
	tr.OnRetrieval("e1")
	tr.OnRetrieval("e1")
	tr.Flush(context.Background())

	got, _ := s.Get(context.Background(), "e1")
	assert.Equal(t, int64(2), RetrievalCount(got))
}

func TestRunPeriodicFlushOnStop(t *testing.T) {
	s := newFakeStore()
	e := &engram.Engram{ID: "e1", Metadata: map[string]any{}}
	s.byID[e.ID] = e

	tr := New(s)
	ctx, cancel := context.WithCancel(context.Background())
	tr.Run(ctx)

	tr.OnRetrieval("e1")
	cancel()
	tr.Stop()

	got, _ := s.Get(context.Background(), "e1")
	assert.Equal(t, int64(1), RetrievalCount(got))
}

func TestAdjustSimilarityMultiplierRange(t *testing.T) {
	e := &engram.Engram{Metadata: map[string]any{metadataHelpfulness: 1.0}}
	assert.InDelta(t, 1.5, AdjustSimilarity(1.0, e), 1e-9)

	e2 := &engram.Engram{Metadata: map[string]any{metadataHelpfulness: 0.0}}
	assert.InDelta(t, 0.5, AdjustSimilarity(1.0, e2), 1e-9)
}
