// Package synthesis implements the Synthesizer (C15): a periodic pass that
// clusters recent, as-yet-unsynthesized engrams by similarity and asks an
// LLM to distill each cluster into a single higher-level engram. Modeled as
// a periodic-ticker actor in the same style as internal/consolidate and
// internal/forget.
package synthesis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"memnexus/internal/engram"
	"memnexus/internal/retrieve"
)

// maxConcurrentSyntheses bounds how many clusters are summarised by the LLM
// at once; inserts still funnel through the write serializer's single actor,
// so this only parallelises the slow network call.
const maxConcurrentSyntheses = 4

// DefaultInterval is the periodic synthesis sweep period.
const DefaultInterval = 5 * time.Minute

// DefaultFetchLimit is how many recent unsynthesized engrams are scanned per run.
const DefaultFetchLimit = 100

// DefaultSimilarityThreshold is the minimum pairwise cosine similarity for
// two engrams to cluster together.
const DefaultSimilarityThreshold = 0.75

// DefaultMinClusterSize is the minimum number of members for a cluster to
// be eligible for synthesis.
const DefaultMinClusterSize = 3

// DefaultMaxSynthesesPerRun bounds how many clusters are synthesized per run.
const DefaultMaxSynthesesPerRun = 5

// DefaultMinResultLength is the minimum acceptable LLM completion length.
const DefaultMinResultLength = 20

// synthesizedSourceTag marks engrams produced by this package so they are
// never re-synthesized.
const synthesizedSourceTag = "autonomous_synthesis"

// metadataSynthesizedAt marks a cluster member as already folded into a synthesis.
const metadataSynthesizedAt = "synthesized_at"

// Completer is the external LLM completion provider (treated as external
// per spec.md §6); synthesis does not manage retries/caching itself beyond
// treating rate-limit/timeout errors as non-fatal per-cluster deferrals.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Writer is the subset of the write serializer used to insert synthesized engrams.
type Writer interface {
	Insert(ctx context.Context, e *engram.Engram) error
}

// MetadataUpdater marks cluster members as synthesized after use.
type MetadataUpdater interface {
	Update(ctx context.Context, e *engram.Engram) error
}

// Lister fetches the scan population for clustering.
type Lister interface {
	List(ctx context.Context, limit int, f engram.Filters) ([]engram.Engram, error)
}

// Synthesizer periodically clusters and distills recent engrams.
type Synthesizer struct {
	lister    Lister
	writer    Writer
	updater   MetadataUpdater
	completer Completer

	// writeMu serializes calls into writer/updater across concurrently
	// summarised clusters; neither interface promises its own thread safety
	// (the production writer, writeserializer.Serializer, does, but tests and
	// other callers may not).
	writeMu sync.Mutex

	Interval            time.Duration
	FetchLimit          int
	SimilarityThreshold float64
	MinClusterSize      int
	MaxSynthesesPerRun  int
	Now                 func() time.Time
}

// New constructs a Synthesizer with spec defaults.
func New(lister Lister, writer Writer, updater MetadataUpdater, completer Completer) *Synthesizer {
	return &Synthesizer{
		lister:              lister,
		writer:              writer,
		updater:             updater,
		completer:           completer,
		Interval:            DefaultInterval,
		FetchLimit:          DefaultFetchLimit,
		SimilarityThreshold: DefaultSimilarityThreshold,
		MinClusterSize:      DefaultMinClusterSize,
		MaxSynthesesPerRun:  DefaultMaxSynthesesPerRun,
		Now:                 time.Now,
	}
}

// Run starts the periodic sweep loop; it stops when ctx is cancelled.
func (s *Synthesizer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("synthesis_run_failed")
			} else if n > 0 {
				log.Info().Int("syntheses", n).Msg("brain.synthesis.completed")
			}
		}
	}
}

// RunOnce performs a single synthesis pass and returns the number of new
// synthesis engrams inserted.
func (s *Synthesizer) RunOnce(ctx context.Context) (int, error) {
	all, err := s.lister.List(ctx, s.FetchLimit, engram.Filters{})
	if err != nil {
		return 0, err
	}

	candidates := make([]engram.Engram, 0, len(all))
	for _, e := range all {
		if eligible(e) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	clusters := cluster(candidates, s.SimilarityThreshold, s.MinClusterSize)
	sort.Slice(clusters, func(i, j int) bool { return len(clusters[i]) > len(clusters[j]) })

	if len(clusters) > s.MaxSynthesesPerRun {
		clusters = clusters[:s.MaxSynthesesPerRun]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSyntheses)
	var mu sync.Mutex
	inserted := 0
	for _, c := range clusters {
		c := c
		g.Go(func() error {
			if err := s.synthesizeCluster(gctx, c); err != nil {
				log.Warn().Err(err).Msg("synthesis_cluster_deferred")
				return nil
			}
			mu.Lock()
			inserted++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return inserted, nil
}

// eligible reports whether e is a valid synthesis input: not already
// synthesized, not itself a prior synthesis, and embedded.
func eligible(e engram.Engram) bool {
	if len(e.Embedding) == 0 {
		return false
	}
	if src, _ := e.Metadata["source"].(string); src == synthesizedSourceTag {
		return false
	}
	if _, ok := e.Metadata[metadataSynthesizedAt]; ok {
		return false
	}
	return true
}

// cluster greedily groups engrams whose pairwise cosine similarity to the
// cluster's seed meets threshold, discarding clusters below minSize.
func cluster(items []engram.Engram, threshold float64, minSize int) [][]engram.Engram {
	used := make([]bool, len(items))
	var clusters [][]engram.Engram

	for i := range items {
		if used[i] {
			continue
		}
		group := []engram.Engram{items[i]}
		used[i] = true
		for j := i + 1; j < len(items); j++ {
			if used[j] {
				continue
			}
			if retrieve.CosineSimilarity(items[i].Embedding, items[j].Embedding) >= threshold {
				group = append(group, items[j])
				used[j] = true
			}
		}
		if len(group) >= minSize {
			clusters = append(clusters, group)
		}
	}
	return clusters
}

// synthesizeCluster builds a prompt from the cluster members, calls the
// completer, inserts the resulting engram, and marks members as synthesized.
func (s *Synthesizer) synthesizeCluster(ctx context.Context, members []engram.Engram) error {
	prompt := buildPrompt(members)
	result, err := s.completer.Complete(ctx,
		"Summarize the common thread across these related memories in one or two sentences.",
		prompt)
	if err != nil {
		return fmt.Errorf("synthesis: complete: %w", err)
	}

	result = strings.TrimSpace(result)
	if len(result) < DefaultMinResultLength {
		return fmt.Errorf("synthesis: completion too short (%d chars)", len(result))
	}
	if !strings.HasPrefix(result, "SYNTHESIS: ") {
		result = "SYNTHESIS: " + result
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}

	e := &engram.Engram{
		Content:            result,
		Category:           engram.CategoryFact,
		Importance:         0.9,
		OriginalImportance: 0.9,
		ProjectID:          engram.DefaultProjectID,
		Metadata: map[string]any{
			"source":            synthesizedSourceTag,
			"source_memory_ids": ids,
		},
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.writer.Insert(ctx, e); err != nil {
		return fmt.Errorf("synthesis: insert: %w", err)
	}

	now := s.Now()
	for _, m := range members {
		cp := m
		if cp.Metadata == nil {
			cp.Metadata = map[string]any{}
		}
		cp.Metadata[metadataSynthesizedAt] = now
		if err := s.updater.Update(ctx, &cp); err != nil {
			log.Warn().Err(err).Str("id", cp.ID).Msg("synthesis_mark_member_failed")
		}
	}
	return nil
}

// buildPrompt renders cluster members into a prompt body.
func buildPrompt(members []engram.Engram) string {
	var b strings.Builder
	for i, m := range members {
		fmt.Fprintf(&b, "%d. %s\n", i+1, m.Content)
	}
	return b.String()
}
