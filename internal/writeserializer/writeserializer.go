// Package writeserializer implements the Write Serializer (C16): a single
// goroutine actor that drains a FIFO job channel so all state-changing
// engram store operations commit in program order, even under concurrent
// callers. Modeled on the same single-threaded-actor idiom as
// internal/access's Tracker (itself grounded on the teacher's
// agent/memory/manager.go background-flush loop), generalized here to a
// blocking request/response job queue instead of a fire-and-forget buffer.
package writeserializer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"memnexus/internal/engram"
)

// DefaultWriteTimeout is how long a caller waits for its job to complete
// before giving up with engram.ErrWriteTimeout.
const DefaultWriteTimeout = 30 * time.Second

// DefaultQueueSize bounds the number of jobs buffered ahead of the actor.
const DefaultQueueSize = 256

// Store is the subset of engram.Store the serializer commits writes through.
type Store interface {
	Insert(ctx context.Context, e *engram.Engram) error
	Update(ctx context.Context, e *engram.Engram) error
	Delete(ctx context.Context, id string) error
}

// Stats is a snapshot of the serializer's lifetime counters.
type Stats struct {
	TotalWrites int64
	TotalErrors int64
	LastWriteAt time.Time
	StartedAt   time.Time
	QueueDepth  int
}

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
	opInsertAll
	opTransaction
)

type job struct {
	kind   opKind
	e      *engram.Engram
	es     []*engram.Engram
	id     string
	fn     func(ctx context.Context, s Store) error
	result chan error
}

// reentryKey is a context key used to detect a transaction function calling
// back into the serializer, which would otherwise deadlock waiting for
// itself to drain.
type reentryKey struct{}

// Serializer is the single writer; construct with New and start with Run.
type Serializer struct {
	store Store
	queue chan job

	mu    sync.Mutex
	stats Stats

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Serializer bound to store. Call Run to start the actor
// goroutine before issuing writes.
func New(store Store) *Serializer {
	return &Serializer{
		store: store,
		queue: make(chan job, DefaultQueueSize),
		stats: Stats{StartedAt: time.Now()},
	}
}

// Run starts the actor loop; it drains jobs until ctx is cancelled or Stop
// is called.
func (s *Serializer) Run(ctx context.Context) {
	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				s.drainRemaining()
				return
			case <-s.stopCh:
				s.drainRemaining()
				return
			case j := <-s.queue:
				s.execute(ctx, j)
			}
		}
	}()
}

// drainRemaining fails any jobs still queued at shutdown so callers don't
// block forever.
func (s *Serializer) drainRemaining() {
	for {
		select {
		case j := <-s.queue:
			j.result <- engram.ErrWriteTimeout
		default:
			return
		}
	}
}

// Stop halts the actor loop and waits for it to exit.
func (s *Serializer) Stop() {
	if s.stopCh != nil {
		close(s.stopCh)
	}
	s.wg.Wait()
}

func (s *Serializer) execute(ctx context.Context, j job) {
	var err error
	switch j.kind {
	case opInsert:
		err = s.store.Insert(ctx, j.e)
	case opUpdate:
		err = s.store.Update(ctx, j.e)
	case opDelete:
		err = s.store.Delete(ctx, j.id)
	case opInsertAll:
		for _, e := range j.es {
			if err = s.store.Insert(ctx, e); err != nil {
				break
			}
		}
	case opTransaction:
		txCtx := context.WithValue(ctx, reentryKey{}, true)
		err = j.fn(txCtx, s.store)
	}

	s.mu.Lock()
	s.stats.TotalWrites++
	s.stats.LastWriteAt = time.Now()
	if err != nil {
		s.stats.TotalErrors++
	}
	s.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Int("kind", int(j.kind)).Msg("writeserializer_op_failed")
	}
	j.result <- err
}

// submit enqueues a job and blocks until it completes or DefaultWriteTimeout
// elapses, in which case it returns engram.ErrWriteTimeout. If the actor
// isn't running (Run was never called, or has stopped), submit falls back
// to executing the op directly against the store so writes still succeed.
func (s *Serializer) submit(ctx context.Context, j job) error {
	j.result = make(chan error, 1)

	if reentrant, _ := ctx.Value(reentryKey{}).(bool); reentrant {
		// Already inside a serialized transaction on this goroutine: run the
		// op directly instead of enqueuing, which would deadlock waiting for
		// the actor to drain a queue it can't reach (it's blocked on us).
		s.execute(ctx, j)
		return <-j.result
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		// Actor not started (or has stopped): execute directly so writes
		// still succeed rather than blocking on a queue nobody drains.
		s.execute(ctx, j)
		return <-j.result
	}

	select {
	case s.queue <- j:
	default:
		// Queue saturated: fall back to direct execution rather than make
		// the caller wait behind a full backlog.
		s.execute(ctx, j)
		return <-j.result
	}

	select {
	case err := <-j.result:
		return err
	case <-time.After(DefaultWriteTimeout):
		return engram.ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Insert serializes a single insert through the actor.
func (s *Serializer) Insert(ctx context.Context, e *engram.Engram) error {
	return s.submit(ctx, job{kind: opInsert, e: e})
}

// Update serializes a single update through the actor.
func (s *Serializer) Update(ctx context.Context, e *engram.Engram) error {
	return s.submit(ctx, job{kind: opUpdate, e: e})
}

// Delete serializes a single delete through the actor.
func (s *Serializer) Delete(ctx context.Context, id string) error {
	return s.submit(ctx, job{kind: opDelete, id: id})
}

// InsertAll serializes a batch of inserts as a single queued job, so they
// land contiguously relative to other writers.
func (s *Serializer) InsertAll(ctx context.Context, es []*engram.Engram) error {
	return s.submit(ctx, job{kind: opInsertAll, es: es})
}

// Transaction runs fn with exclusive access to the store from the actor's
// perspective: no other submitted job executes until fn returns. A nested
// call into this same Serializer from within fn is detected and executed
// directly rather than deadlocking on a queue the actor can't drain.
func (s *Serializer) Transaction(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	return s.submit(ctx, job{kind: opTransaction, fn: fn})
}

// StatsSnapshot reports the serializer's lifetime counters.
func (s *Serializer) StatsSnapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.stats
	snap.QueueDepth = len(s.queue)
	return snap
}
