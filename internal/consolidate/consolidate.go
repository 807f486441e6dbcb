// Package consolidate implements the Consolidator (C13): periodic promotion
// of working-memory items (C6) into durable engrams, plus a companion
// interaction consolidator that curates raw tool interactions into engrams
// via an external LLM curator. Modeled as a periodic-ticker actor in the
// same style as internal/access's Tracker.Run loop.
package consolidate

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"memnexus/internal/engram"
	"memnexus/internal/working"
)

// DefaultInterval is the periodic consolidation sweep period.
const DefaultInterval = 60 * time.Second

// DefaultMinAge is the minimum item age before it becomes eligible.
const DefaultMinAge = 30 * time.Second

// DefaultScoreThreshold is the minimum consolidation score to promote.
const DefaultScoreThreshold = 0.3

// DefaultBatchSize is the max candidates pulled from working memory per run.
const DefaultBatchSize = 50

// nearestSampleSize is how many nearest existing engrams feed the novelty term.
const nearestSampleSize = 5

// Embedder produces an embedding for promoted content.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Writer is the subset of the write serializer used to insert promoted
// engrams; state-changing writes must flow through it, not the raw store.
type Writer interface {
	Insert(ctx context.Context, e *engram.Engram) error
}

// Searcher is the subset of engram.Store needed for the novelty term.
type Searcher interface {
	NearestByVector(ctx context.Context, vector []float32, topK int, minSimilarity float64, f engram.Filters) ([]engram.VectorHit, error)
}

// Consolidator promotes working-memory candidates into durable engrams.
type Consolidator struct {
	working  *working.Memory
	embedder Embedder
	writer   Writer
	searcher Searcher

	Interval       time.Duration
	MinAge         time.Duration
	ScoreThreshold float64
	BatchSize      int
	Now            func() time.Time
}

// New constructs a Consolidator with spec defaults.
func New(wm *working.Memory, embedder Embedder, writer Writer, searcher Searcher) *Consolidator {
	return &Consolidator{
		working:        wm,
		embedder:       embedder,
		writer:         writer,
		searcher:       searcher,
		Interval:       DefaultInterval,
		MinAge:         DefaultMinAge,
		ScoreThreshold: DefaultScoreThreshold,
		BatchSize:      DefaultBatchSize,
		Now:            time.Now,
	}
}

// Run starts the periodic sweep loop; it stops when ctx is cancelled.
func (c *Consolidator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := c.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("consolidation_run_failed")
			} else if n > 0 {
				log.Info().Int("promoted", n).Msg("memory.consolidation.completed")
			}
		}
	}
}

// RunOnce performs a single consolidation pass and returns the number of
// items promoted.
func (c *Consolidator) RunOnce(ctx context.Context) (int, error) {
	candidates := c.working.GetConsolidationCandidates(c.MinAge, c.BatchSize)
	if len(candidates) == 0 {
		return 0, nil
	}

	type scored struct {
		item  working.Item
		score float64
	}
	now := c.Now()
	var ranked []scored
	for _, it := range candidates {
		score := c.score(ctx, it, now)
		if score >= c.ScoreThreshold {
			ranked = append(ranked, scored{item: it, score: score})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	promoted := 0
	for _, r := range ranked {
		if err := c.promote(ctx, r.item, r.score); err != nil {
			log.Warn().Err(err).Str("item_id", r.item.ID).Msg("consolidation_promote_failed")
			continue
		}
		c.working.Delete(r.item.ID)
		promoted++
	}
	return promoted, nil
}

// score computes the consolidation score per spec.md §4.13.
func (c *Consolidator) score(ctx context.Context, it working.Item, now time.Time) float64 {
	importance := importanceOf(it)
	accessCount := accessCountOf(it)
	ageSeconds := now.Sub(it.CreatedAt).Seconds()

	novelty := c.novelty(ctx, it)

	score := 0.4*importance +
		0.3*math.Min(1, float64(accessCount)/10) +
		0.2*novelty +
		0.1*math.Min(1, ageSeconds/300)
	return engram.Clamp01(score)
}

// novelty blends 1-max_similarity against the nearest existing engrams with
// a word-uniqueness ratio, 60/40, falling back to a fixed baseline when no
// similar engram exists at all.
func (c *Consolidator) novelty(ctx context.Context, it working.Item) float64 {
	ratio := uniquenessRatio(it.Content)

	if c.embedder == nil || c.searcher == nil {
		return engram.Clamp01(0.8 + 0.2*ratio)
	}
	vec, err := c.embedder.Embed(ctx, it.Content)
	if err != nil || len(vec) == 0 {
		return engram.Clamp01(0.8 + 0.2*ratio)
	}
	hits, err := c.searcher.NearestByVector(ctx, vec, nearestSampleSize, 0, engram.Filters{})
	if err != nil || len(hits) == 0 {
		return engram.Clamp01(0.8 + 0.2*ratio)
	}

	maxSim := 0.0
	for _, h := range hits {
		if h.Similarity > maxSim {
			maxSim = h.Similarity
		}
	}
	simNovelty := 1 - maxSim
	return engram.Clamp01(0.6*simNovelty + 0.4*ratio)
}

// uniquenessRatio is the fraction of distinct words in content, a cheap
// proxy for lexical novelty independent of the vector index.
func uniquenessRatio(content string) float64 {
	words := strings.Fields(strings.ToLower(content))
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

// promote embeds and inserts a working-memory item as a durable engram.
func (c *Consolidator) promote(ctx context.Context, it working.Item, score float64) error {
	var vec []float32
	if c.embedder != nil {
		v, err := c.embedder.Embed(ctx, it.Content)
		if err == nil {
			vec = v
		}
	}

	metadata := make(map[string]any, len(it.Metadata)+3)
	for k, v := range it.Metadata {
		metadata[k] = v
	}
	metadata["source"] = "working_memory"
	metadata["original_created"] = it.CreatedAt
	metadata["consolidation_score"] = score

	importance := importanceOf(it)
	e := &engram.Engram{
		Content:            it.Content,
		Category:           categoryOf(it),
		Importance:         importance,
		OriginalImportance: importance,
		Embedding:          vec,
		Metadata:           metadata,
		ProjectID:          projectOf(it),
		ThreadID:           it.SessionID,
	}
	return c.writer.Insert(ctx, e)
}

func importanceOf(it working.Item) float64 {
	if v, ok := it.Metadata["importance"].(float64); ok {
		return v
	}
	return 0.5
}

func accessCountOf(it working.Item) int64 {
	switch v := it.Metadata["access_count"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func categoryOf(it working.Item) engram.Category {
	if v, ok := it.Metadata["category"].(string); ok && engram.ValidCategory(engram.Category(v)) {
		return engram.Category(v)
	}
	return engram.CategoryObservation
}

func projectOf(it working.Item) string {
	if v, ok := it.Metadata["project_id"].(string); ok && v != "" {
		return v
	}
	return engram.DefaultProjectID
}
