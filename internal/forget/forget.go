// Package forget implements the Forgetting Sweeper (C14): a periodic batch
// pass that deletes engrams whose decay score has fallen below threshold,
// unless protected. Modeled as a periodic-ticker actor in the same style as
// internal/access's Tracker.Run and internal/consolidate's Consolidator.Run.
package forget

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"memnexus/internal/decay"
	"memnexus/internal/engram"
)

// DefaultInterval is the periodic sweep period.
const DefaultInterval = time.Hour

// DefaultThreshold is the decay score below which an engram is forgotten.
const DefaultThreshold = 0.1

// DefaultBatchSize is the max engrams read per sweep.
const DefaultBatchSize = 1000

// Reader is the subset of engram.Store the sweeper scans.
type Reader interface {
	List(ctx context.Context, limit int, f engram.Filters) ([]engram.Engram, error)
}

// Deleter is the subset of write access the sweeper uses to remove decayed
// engrams; real deployments should route this through the write serializer.
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

// EventSink receives a decayed event per deletion (or would-be deletion in
// dry-run mode), matching the memory.decayed telemetry event of spec.md §6.
type EventSink interface {
	Emit(ctx context.Context, event string, measurements map[string]float64, metadata map[string]string)
}

// Sweeper is the periodic forgetting actor.
type Sweeper struct {
	reader Reader
	writer Deleter
	events EventSink

	Interval   time.Duration
	Threshold  float64
	BatchSize  int
	DryRun     bool
	ActiveDays decay.ActiveDaysSource
	Now        func() time.Time
}

// New constructs a Sweeper with spec defaults. events may be nil to skip
// telemetry emission.
func New(reader Reader, writer Deleter, events EventSink, activeDays decay.ActiveDaysSource) *Sweeper {
	return &Sweeper{
		reader:     reader,
		writer:     writer,
		events:     events,
		Interval:   DefaultInterval,
		Threshold:  DefaultThreshold,
		BatchSize:  DefaultBatchSize,
		ActiveDays: activeDays,
		Now:        time.Now,
	}
}

// Run starts the periodic sweep loop; it stops when ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("forgetting_sweep_failed")
			} else if n > 0 {
				log.Info().Int("forgotten", n).Bool("dry_run", s.DryRun).Msg("memory.forgetting.completed")
			}
		}
	}
}

// RunOnce performs a single sweep and returns the number of engrams
// forgotten (or that would have been, under dry_run).
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	engrams, err := s.reader.List(ctx, s.BatchSize, engram.Filters{})
	if err != nil {
		return 0, err
	}

	now := s.Now()
	var toForget []engram.Engram
	for _, e := range engrams {
		if e.Protected {
			continue
		}
		if decay.ShouldForget(&e, now, s.ActiveDays, s.Threshold) {
			toForget = append(toForget, e)
		}
	}

	if len(toForget) == 0 {
		return 0, nil
	}

	if s.DryRun {
		for _, e := range toForget {
			s.emit(ctx, e)
		}
		log.Info().Int("candidates", len(toForget)).Msg("memory.forgetting.dry_run")
		return len(toForget), nil
	}

	forgotten := 0
	for _, e := range toForget {
		if err := s.writer.Delete(ctx, e.ID); err != nil {
			log.Warn().Err(err).Str("id", e.ID).Msg("forgetting_delete_failed")
			continue
		}
		s.emit(ctx, e)
		forgotten++
	}
	return forgotten, nil
}

func (s *Sweeper) emit(ctx context.Context, e engram.Engram) {
	if s.events == nil {
		return
	}
	s.events.Emit(ctx, "memory.decayed",
		map[string]float64{"decay_score": decay.Score(&e, s.Now(), s.ActiveDays)},
		map[string]string{"id": e.ID, "category": string(e.Category)})
}

// Protector flips the protected flag on an engram.
type Protector interface {
	Get(ctx context.Context, id string) (*engram.Engram, error)
	Update(ctx context.Context, e *engram.Engram) error
}

// Protect marks an engram immune to forgetting.
func Protect(ctx context.Context, store Protector, id string) error {
	return setProtected(ctx, store, id, true)
}

// Unprotect removes an engram's immunity to forgetting.
func Unprotect(ctx context.Context, store Protector, id string) error {
	return setProtected(ctx, store, id, false)
}

func setProtected(ctx context.Context, store Protector, id string, protected bool) error {
	e, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	e.Protected = protected
	return store.Update(ctx, e)
}
