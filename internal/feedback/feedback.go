// Package feedback implements Usage Feedback (C12): per-engram retrieval
// counters and a helpfulness score, both persisted in the engram's
// metadata, flushed in batches in the style of the Access Tracker (C5).
package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"memnexus/internal/engram"
)

// DefaultHelpfulness is the starting helpfulness score for new engrams.
const DefaultHelpfulness = 0.5

// DefaultFlushInterval is the periodic retrieval-count flush period.
const DefaultFlushInterval = 30 * time.Second

const (
	metadataRetrievalCount = "retrieval_count"
	metadataHelpfulness    = "helpfulness_score"
)

// Store is the subset of engram.Store the tracker needs to read/update
// metadata.
type Store interface {
	Get(ctx context.Context, id string) (*engram.Engram, error)
	Update(ctx context.Context, e *engram.Engram) error
}

// Tracker buffers retrieval counts and applies helpfulness adjustments.
type Tracker struct {
	mu            sync.Mutex
	pending       map[string]int64
	store         Store
	now           func() time.Time
	flushInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Tracker bound to store, flushing every DefaultFlushInterval.
func New(store Store) *Tracker {
	return &Tracker{
		pending:       make(map[string]int64),
		store:         store,
		now:           time.Now,
		flushInterval: DefaultFlushInterval,
	}
}

// Run starts the periodic flush loop, mirroring access.Tracker's self-backgrounding
// actor: it launches its own goroutine and returns immediately. Stops on ctx
// cancellation or Stop, flushing any pending increments first.
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

// Stop halts the flush loop started by Run, flushing any pending increments.
func (t *Tracker) Stop() {
	if t.stopCh != nil {
		close(t.stopCh)
	}
	t.wg.Wait()
}

// RetrievalCount returns the current retrieval_count in e's metadata.
func RetrievalCount(e *engram.Engram) int64 {
	v, ok := e.Metadata[metadataRetrievalCount]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// Helpfulness returns the current helpfulness_score in e's metadata,
// defaulting to DefaultHelpfulness if absent.
func Helpfulness(e *engram.Engram) float64 {
	v, ok := e.Metadata[metadataHelpfulness]
	if !ok {
		return DefaultHelpfulness
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return DefaultHelpfulness
}

// OnRetrieval increments the pending retrieval_count for id; non-blocking,
// flushed every DefaultFlushInterval.
func (t *Tracker) OnRetrieval(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[id]++
}

// Flush applies all pending retrieval_count increments to the store.
func (t *Tracker) Flush(ctx context.Context) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[string]int64)
	t.mu.Unlock()

	for id, inc := range pending {
		e, err := t.store.Get(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("id", id).Msg("feedback_flush_get_failed")
			continue
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[metadataRetrievalCount] = RetrievalCount(e) + inc
		if err := t.store.Update(ctx, e); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("feedback_flush_update_failed")
		}
	}
}

// SignalUseful raises helpfulness by 0.05, clamped to [0,1].
func (t *Tracker) SignalUseful(ctx context.Context, id string) error {
	return t.adjustHelpfulness(ctx, id, 0.05)
}

// SignalNoise lowers helpfulness by 0.03, clamped to [0,1].
func (t *Tracker) SignalNoise(ctx context.Context, id string) error {
	return t.adjustHelpfulness(ctx, id, -0.03)
}

func (t *Tracker) adjustHelpfulness(ctx context.Context, id string, delta float64) error {
	e, err := t.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[metadataHelpfulness] = engram.Clamp01(Helpfulness(e) + delta)
	return t.store.Update(ctx, e)
}

// AdjustSimilarity is the ranking hook: sim * (0.5 + helpfulness), a
// multiplier in [0.5, 1.5].
func AdjustSimilarity(sim float64, e *engram.Engram) float64 {
	return sim * (0.5 + Helpfulness(e))
}
