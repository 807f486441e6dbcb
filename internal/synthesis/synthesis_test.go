package synthesis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memnexus/internal/engram"
)

type fakeLister struct {
	engrams []engram.Engram
}

func (f *fakeLister) List(ctx context.Context, limit int, filt engram.Filters) ([]engram.Engram, error) {
	return f.engrams, nil
}

type fakeWriter struct {
	inserted []*engram.Engram
}

func (f *fakeWriter) Insert(ctx context.Context, e *engram.Engram) error {
	f.inserted = append(f.inserted, e)
	return nil
}

type fakeUpdater struct {
	updated []*engram.Engram
}

func (f *fakeUpdater) Update(ctx context.Context, e *engram.Engram) error {
	f.updated = append(f.updated, e)
	return nil
}

type fakeCompleter struct {
	out string
	err error
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.out, f.err
}

func similarEngram(id string, vec []float32) engram.Engram {
	return engram.Engram{ID: id, Content: "note about " + id, Embedding: vec}
}

func TestRunOnceSynthesizesEligibleCluster(t *testing.T) {
	engrams := []engram.Engram{
		similarEngram("a", []float32{1, 0, 0}),
		similarEngram("b", []float32{0.99, 0.01, 0}),
		similarEngram("c", []float32{0.98, 0.02, 0}),
	}
	lister := &fakeLister{engrams: engrams}
	writer := &fakeWriter{}
	updater := &fakeUpdater{}
	completer := &fakeCompleter{out: strings.Repeat("x", 30)}

	s := New(lister, writer, updater, completer)
	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, writer.inserted, 1)
	assert.True(t, strings.HasPrefix(writer.inserted[0].Content, "SYNTHESIS: "))
	assert.Equal(t, "autonomous_synthesis", writer.inserted[0].Metadata["source"])
	assert.Len(t, updater.updated, 3)
}

func TestRunOnceSkipsClustersBelowMinSize(t *testing.T) {
	engrams := []engram.Engram{
		similarEngram("a", []float32{1, 0, 0}),
		similarEngram("b", []float32{0.99, 0.01, 0}),
	}
	s := New(&fakeLister{engrams: engrams}, &fakeWriter{}, &fakeUpdater{}, &fakeCompleter{out: strings.Repeat("x", 30)})

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunOnceExcludesAlreadySynthesizedEngrams(t *testing.T) {
	e := similarEngram("a", []float32{1, 0, 0})
	e.Metadata = map[string]any{"source": "autonomous_synthesis"}
	engrams := []engram.Engram{
		e,
		similarEngram("b", []float32{0.99, 0.01, 0}),
		similarEngram("c", []float32{0.98, 0.02, 0}),
	}
	s := New(&fakeLister{engrams: engrams}, &fakeWriter{}, &fakeUpdater{}, &fakeCompleter{out: strings.Repeat("x", 30)})

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSynthesizeClusterDefersOnShortCompletion(t *testing.T) {
	members := []engram.Engram{similarEngram("a", []float32{1, 0}), similarEngram("b", []float32{1, 0}), similarEngram("c", []float32{1, 0})}
	writer := &fakeWriter{}
	s := New(&fakeLister{}, writer, &fakeUpdater{}, &fakeCompleter{out: "too short"})

	err := s.synthesizeCluster(context.Background(), members)
	assert.Error(t, err)
	assert.Empty(t, writer.inserted)
}

func TestSynthesizeClusterDefersOnCompleterError(t *testing.T) {
	members := []engram.Engram{similarEngram("a", []float32{1, 0}), similarEngram("b", []float32{1, 0}), similarEngram("c", []float32{1, 0})}
	s := New(&fakeLister{}, &fakeWriter{}, &fakeUpdater{}, &fakeCompleter{err: assert.AnError})

	err := s.synthesizeCluster(context.Background(), members)
	assert.Error(t, err)
}

func TestMaxSynthesesPerRunBoundsInsertCount(t *testing.T) {
	var engrams []engram.Engram
	clusters := [][]float32{{1, 0}, {0, 1}, {-1, 0}, {0, -1}, {1, 1}, {-1, -1}, {2, 2}}
	for ci, base := range clusters {
		for m := 0; m < 3; m++ {
			engrams = append(engrams, similarEngram(
				string(rune('a'+ci))+string(rune('0'+m)), base))
		}
	}
	s := New(&fakeLister{engrams: engrams}, &fakeWriter{}, &fakeUpdater{}, &fakeCompleter{out: strings.Repeat("x", 30)})
	s.MaxSynthesesPerRun = 2

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNowDefaultsToRealClock(t *testing.T) {
	s := New(&fakeLister{}, &fakeWriter{}, &fakeUpdater{}, &fakeCompleter{})
	before := time.Now()
	got := s.Now()
	assert.False(t, got.Before(before.Add(-time.Second)))
}
