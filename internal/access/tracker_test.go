package access

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memnexus/internal/engram"
)

type fakeFlusher struct {
	mu      sync.Mutex
	batches [][]engram.AccessIncrement
}

func (f *fakeFlusher) ApplyAccessIncrements(ctx context.Context, batches []engram.AccessIncrement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]engram.AccessIncrement, len(batches))
	copy(cp, batches)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeFlusher) total(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, batch := range f.batches {
		for _, inc := range batch {
			for _, got := range inc.IDs {
				if got == id {
					total += inc.Inc
				}
			}
		}
	}
	return total
}

func TestTrackIsNonBlockingAndBatchesByIncrement(t *testing.T) {
	f := &fakeFlusher{}
	tr := New(f)

	tr.Track("a")
	tr.Track("a")
	tr.Track("b")
	assert.Equal(t, 2, tr.PendingCount())

	tr.Flush(context.Background())
	assert.Equal(t, 0, tr.PendingCount())
	assert.Equal(t, int64(2), f.total("a"))
	assert.Equal(t, int64(1), f.total("b"))
}

func TestAutoFlushAtThreshold(t *testing.T) {
	f := &fakeFlusher{}
	tr := New(f)
	tr.autoFlushSize = 3

	tr.Track("a")
	tr.Track("b")
	require.Equal(t, 2, tr.PendingCount())
	tr.Track("c")

	assert.Equal(t, 0, tr.PendingCount())
	assert.Equal(t, int64(1), f.total("c"))
}

func TestFlushIsNoOpWhenEmpty(t *testing.T) {
	f := &fakeFlusher{}
	tr := New(f)
	tr.Flush(context.Background())
	assert.Empty(t, f.batches)
}

func TestRunPeriodicFlushOnStop(t *testing.T) {
	f := &fakeFlusher{}
	tr := New(f)
	ctx, cancel := context.WithCancel(context.Background())
	tr.Run(ctx)

	tr.Track("z")
	cancel()
	tr.Stop()

	assert.Equal(t, int64(1), f.total("z"))
}
