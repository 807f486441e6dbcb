package consolidate

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"memnexus/internal/engram"
)

// DefaultInteractionBatchSize is the number of raw interactions batched to
// the curator per run.
const DefaultInteractionBatchSize = 20

// DefaultMinInteractions is the minimum batch size required to curate.
const DefaultMinInteractions = 5

// DefaultInteractionMinAge is how long a recorded interaction sits
// unconsolidated before it becomes eligible.
const DefaultInteractionMinAge = 5 * time.Minute

// Interaction is a single recorded tool call/response, external to the
// memory engine proper (recorded by the host agent runtime).
type Interaction struct {
	ID         string
	SessionID  string
	ToolName   string
	Input      string
	Output     string
	OccurredAt time.Time
}

// CuratedEngram is a candidate engram distilled from a batch of
// interactions by the curator.
type CuratedEngram struct {
	Content              string
	Category             engram.Category
	Importance           float64
	SourceInteractionIDs []string
}

// Curator is the external LLM-backed curator interface: given a batch of
// raw interactions, it proposes zero or more candidate engrams worth
// remembering. Treated as an external dependency per spec.md §6.
type Curator interface {
	Curate(ctx context.Context, batch []Interaction) ([]CuratedEngram, error)
}

// InteractionSource supplies unconsolidated interaction batches, e.g. a
// ring buffer or a durable queue maintained by the host runtime.
type InteractionSource interface {
	PullUnconsolidated(ctx context.Context, minAge time.Duration, limit int) ([]Interaction, error)
	MarkConsolidated(ctx context.Context, ids []string) error
}

// InteractionConsolidator batches raw tool interactions to a Curator and
// inserts the resulting engrams with a source link to the originating
// interactions.
type InteractionConsolidator struct {
	source  InteractionSource
	curator Curator
	writer  Writer

	BatchSize       int
	MinInteractions int
	MinAge          time.Duration
}

// NewInteractionConsolidator constructs an InteractionConsolidator with
// spec defaults.
func NewInteractionConsolidator(source InteractionSource, curator Curator, writer Writer) *InteractionConsolidator {
	return &InteractionConsolidator{
		source:          source,
		curator:         curator,
		writer:          writer,
		BatchSize:       DefaultInteractionBatchSize,
		MinInteractions: DefaultMinInteractions,
		MinAge:          DefaultInteractionMinAge,
	}
}

// Run starts the periodic loop, ticking every interval; it stops when ctx
// is cancelled.
func (ic *InteractionConsolidator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := ic.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("interaction_consolidation_run_failed")
			} else if n > 0 {
				log.Info().Int("inserted", n).Msg("brain.interaction_consolidation.completed")
			}
		}
	}
}

// RunOnce pulls one batch, curates it, and inserts the resulting engrams.
// Returns the number of engrams inserted.
func (ic *InteractionConsolidator) RunOnce(ctx context.Context) (int, error) {
	batch, err := ic.source.PullUnconsolidated(ctx, ic.MinAge, ic.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) < ic.MinInteractions {
		return 0, nil
	}

	curated, err := ic.curator.Curate(ctx, batch)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(batch))
	for _, i := range batch {
		ids = append(ids, i.ID)
	}

	inserted := 0
	for _, c := range curated {
		importance := c.Importance
		if importance == 0 {
			importance = 0.5
		}
		category := c.Category
		if !engram.ValidCategory(category) {
			category = engram.CategoryObservation
		}
		e := &engram.Engram{
			Content:            c.Content,
			Category:           category,
			Importance:         importance,
			OriginalImportance: importance,
			ProjectID:          engram.DefaultProjectID,
			Metadata: map[string]any{
				"source":                 "interaction_consolidation",
				"source_interaction_ids": c.SourceInteractionIDs,
			},
		}
		if err := ic.writer.Insert(ctx, e); err != nil {
			log.Warn().Err(err).Msg("interaction_consolidation_insert_failed")
			continue
		}
		inserted++
	}

	if err := ic.source.MarkConsolidated(ctx, ids); err != nil {
		log.Warn().Err(err).Msg("interaction_consolidation_mark_failed")
	}
	return inserted, nil
}
