package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInteractionSource struct {
	batch   []Interaction
	marked  []string
	pullErr error
	markErr error
}

func (f *fakeInteractionSource) PullUnconsolidated(ctx context.Context, minAge time.Duration, limit int) ([]Interaction, error) {
	return f.batch, f.pullErr
}

func (f *fakeInteractionSource) MarkConsolidated(ctx context.Context, ids []string) error {
	f.marked = ids
	return f.markErr
}

type fakeCurator struct {
	out []CuratedEngram
	err error
}

func (f *fakeCurator) Curate(ctx context.Context, batch []Interaction) ([]CuratedEngram, error) {
	return f.out, f.err
}

func interactionsN(n int) []Interaction {
	out := make([]Interaction, n)
	for i := range out {
		out[i] = Interaction{ID: "i" + string(rune('0'+i))}
	}
	return out
}

func TestRunOnceSkipsWhenBatchBelowMinInteractions(t *testing.T) {
	src := &fakeInteractionSource{batch: interactionsN(2)}
	ic := NewInteractionConsolidator(src, &fakeCurator{}, &fakeWriter{})

	n, err := ic.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunOnceInsertsCuratedEngramsAndMarksConsolidated(t *testing.T) {
	src := &fakeInteractionSource{batch: interactionsN(6)}
	curator := &fakeCurator{out: []CuratedEngram{
		{Content: "learned something durable", SourceInteractionIDs: []string{"i0", "i1"}},
	}}
	w := &fakeWriter{}
	ic := NewInteractionConsolidator(src, curator, w)

	n, err := ic.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, w.inserted, 1)
	assert.Equal(t, "interaction_consolidation", w.inserted[0].Metadata["source"])
	assert.Len(t, src.marked, 6)
}

func TestRunOnceReturnsErrorOnCuratorFailure(t *testing.T) {
	src := &fakeInteractionSource{batch: interactionsN(6)}
	ic := NewInteractionConsolidator(src, &fakeCurator{err: assert.AnError}, &fakeWriter{})

	_, err := ic.RunOnce(context.Background())
	assert.Error(t, err)
}
