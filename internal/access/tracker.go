// Package access implements the Access Tracker (C5): a buffered funnel for
// access-count increments, flushed to the Engram Store in batches. Modeled
// as a single-threaded actor (a goroutine draining a channel), following the
// background-flush idiom of the teacher's agent/memory/manager.go.
package access

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"memnexus/internal/engram"
)

// DefaultFlushInterval is the periodic flush period.
const DefaultFlushInterval = 5 * time.Second

// DefaultAutoFlushSize triggers an immediate flush once pending entries reach
// this size.
const DefaultAutoFlushSize = 100

// Flusher is the subset of engram.Store the tracker needs to commit batches.
type Flusher interface {
	ApplyAccessIncrements(ctx context.Context, batches []engram.AccessIncrement) error
}

// Tracker buffers access events and flushes them in batches.
type Tracker struct {
	mu            sync.Mutex
	pending       map[string]int64
	store         Flusher
	flushInterval time.Duration
	autoFlushSize int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Tracker bound to store, with default intervals.
func New(store Flusher) *Tracker {
	return &Tracker{
		pending:       make(map[string]int64),
		store:         store,
		flushInterval: DefaultFlushInterval,
		autoFlushSize: DefaultAutoFlushSize,
	}
}

// Track is non-blocking: it increments a pending counter for id by 1.
func (t *Tracker) Track(id string) {
	t.TrackN(id, 1)
}

// TrackMany tracks a batch of ids in one call, used by C8 when track_access is set.
func (t *Tracker) TrackMany(ids []string) {
	t.mu.Lock()
	for _, id := range ids {
		t.pending[id]++
	}
	shouldFlush := len(t.pending) >= t.autoFlushSize
	t.mu.Unlock()
	if shouldFlush {
		t.Flush(context.Background())
	}
}

// TrackN increments the pending counter for id by inc.
func (t *Tracker) TrackN(id string, inc int64) {
	t.mu.Lock()
	t.pending[id] += inc
	shouldFlush := len(t.pending) >= t.autoFlushSize
	t.mu.Unlock()
	if shouldFlush {
		t.Flush(context.Background())
	}
}

// Flush groups pending entries by increment value and issues one update per
// group, then clears the buffer. Lost buffers after a crash are acceptable
// per spec.md §4.5; this call is therefore best-effort.
func (t *Tracker) Flush(ctx context.Context) {
	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return
	}
	byInc := make(map[int64][]string)
	for id, inc := range t.pending {
		byInc[inc] = append(byInc[inc], id)
	}
	t.pending = make(map[string]int64)
	t.mu.Unlock()

	batches := make([]engram.AccessIncrement, 0, len(byInc))
	for inc, ids := range byInc {
		batches = append(batches, engram.AccessIncrement{IDs: ids, Inc: inc})
	}
	if err := t.store.ApplyAccessIncrements(ctx, batches); err != nil {
		log.Error().Err(err).Int("batches", len(batches)).Msg("access_tracker_flush_failed")
	}
}

// Run starts the periodic flush loop; it stops when ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	t.stopCh = make(chan struct{})
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.Flush(context.Background())
				return
			case <-t.stopCh:
				t.Flush(context.Background())
				return
			case <-ticker.C:
				t.Flush(ctx)
			}
		}
	}()
}

// Stop halts the periodic flush loop and waits for it to drain.
func (t *Tracker) Stop() {
	if t.stopCh != nil {
		close(t.stopCh)
	}
	t.wg.Wait()
}

// PendingCount reports the number of ids with outstanding increments, for tests/diagnostics.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
