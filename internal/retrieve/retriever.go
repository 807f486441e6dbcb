package retrieve

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"memnexus/internal/attention"
	"memnexus/internal/decay"
	"memnexus/internal/engram"
	"memnexus/internal/feedback"
	"memnexus/internal/graphclient"
)

// DefaultLegTimeout is the per-leg independent timeout (spec.md §4.8, §5).
const DefaultLegTimeout = 10 * time.Second

// DefaultSpreadingActivationHops bounds the breadth-first graph walk.
const DefaultSpreadingActivationHops = 2

// DefaultHopDecay is the per-hop activation decay (spec.md §9, unspecified —
// the default chosen here is one-half per hop).
const DefaultHopDecay = 0.5

// Embedder is the subset of C2 the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AccessTracker is the subset of C5 the retriever needs for track_access.
type AccessTracker interface {
	TrackMany(ids []string)
}

// Options controls a single Search call.
type Options struct {
	Limit       int
	Strategy    Strategy
	MinScore    float64
	Filters     engram.Filters
	FromDate    time.Time
	ToDate      time.Time
	TrackAccess bool
}

// Result pairs an engram with its final hybrid score.
type Result struct {
	Engram engram.Engram
	Score  float64
}

// Retriever is the Hybrid Retriever (C8): fans out five parallel search
// legs, deduplicates, scores with C9, and returns the ranked top-K. The
// fan-out shape is grounded on rag/retrieve/candidates.go's
// ParallelCandidates (teacher repo).
type Retriever struct {
	Store      engram.Store
	Graph      graphclient.Client
	Embedder   Embedder
	Access     AccessTracker
	ActiveDays decay.ActiveDaysSource
	LegTimeout time.Duration
	Now        func() time.Time

	// Attention is the C11 online weight learner; when set, its current
	// weights override the strategy preset's vector/recency/access/graph
	// components (importance still comes from the preset).
	Attention *attention.Learner
}

// New constructs a Retriever with default timeouts and clock.
func New(store engram.Store, graph graphclient.Client, embedder Embedder, access AccessTracker) *Retriever {
	return &Retriever{
		Store:      store,
		Graph:      graph,
		Embedder:   embedder,
		Access:     access,
		LegTimeout: DefaultLegTimeout,
		Now:        time.Now,
	}
}

type candidate struct {
	engram           engram.Engram
	vectorSimilarity *float64
	graphScore       *float64
}

func (r *Retriever) dedupeKey(e engram.Engram) string {
	if e.ID != "" {
		return e.ID
	}
	h := sha1.Sum([]byte(e.Content))
	return "hash:" + hex.EncodeToString(h[:])
}

// Search implements the C8 algorithm end to end.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	weights := WeightsFor(opts.Strategy)
	if r.Attention != nil {
		weights = WithLearned(weights, r.Attention.Weights())
	}

	var queryVector []float32
	if r.Embedder != nil {
		v, err := r.Embedder.Embed(ctx, query)
		if err != nil {
			log.Warn().Err(err).Msg("hybrid_retriever_embedding_failed_skipping_vector_leg")
		} else {
			queryVector = v
		}
	}

	legTimeout := r.LegTimeout
	if legTimeout <= 0 {
		legTimeout = DefaultLegTimeout
	}

	candidates := make(map[string]candidate)
	var mu sync.Mutex
	merge := func(e engram.Engram, vecSim, graphScore *float64) {
		mu.Lock()
		defer mu.Unlock()
		key := r.dedupeKey(e)
		existing, ok := candidates[key]
		cand := candidate{engram: e, vectorSimilarity: vecSim, graphScore: graphScore}
		if !ok {
			candidates[key] = cand
			return
		}
		// Seen from several legs: keep each precomputed score any leg supplied
		// (a later non-nil value replaces an earlier one) and the latest copy.
		if vecSim != nil {
			existing.vectorSimilarity = vecSim
		}
		if graphScore != nil {
			existing.graphScore = graphScore
		}
		existing.engram = e
		candidates[key] = existing
	}

	var wg sync.WaitGroup
	runLeg := func(name string, fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			legCtx, cancel := context.WithTimeout(ctx, legTimeout)
			defer cancel()
			defer func() {
				if p := recover(); p != nil {
					log.Error().Interface("panic", p).Str("leg", name).Msg("hybrid_retriever_leg_crashed")
				}
			}()
			fn(legCtx)
		}()
	}

	runLeg("vector", func(legCtx context.Context) {
		if queryVector == nil {
			return
		}
		hits, err := r.Store.NearestByVector(legCtx, queryVector, limit, 0, opts.Filters)
		if err != nil {
			log.Warn().Err(err).Msg("hybrid_retriever_vector_leg_failed")
			return
		}
		for _, h := range hits {
			sim := feedback.AdjustSimilarity(h.Similarity, &h.Engram)
			merge(h.Engram, &sim, nil)
		}
	})

	runLeg("recency", func(legCtx context.Context) {
		items, err := r.Store.Recent(legCtx, limit, opts.Filters)
		if err != nil {
			log.Warn().Err(err).Msg("hybrid_retriever_recency_leg_failed")
			return
		}
		for _, e := range items {
			merge(e, nil, nil)
		}
	})

	runLeg("lexical", func(legCtx context.Context) {
		hits, err := r.Store.Lexical(legCtx, query, limit, opts.Filters)
		if err != nil {
			log.Warn().Err(err).Msg("hybrid_retriever_lexical_leg_failed")
			return
		}
		for _, h := range hits {
			merge(h.Engram, nil, nil)
		}
	})

	runLeg("graph", func(legCtx context.Context) {
		if r.Graph == nil {
			return
		}
		triples, err := r.Graph.QueryRelated(legCtx, query, limit)
		if err != nil {
			log.Warn().Err(err).Msg("hybrid_retriever_graph_leg_failed")
			return
		}
		for _, t := range triples {
			score := 0.5
			e := engram.Engram{
				Content:    t.Subject + " " + t.Predicate + " " + t.Object,
				Category:   engram.CategoryFact,
				Importance: 0.5,
				InsertedAt: r.clock(),
			}
			merge(e, nil, &score)
		}
	})

	runLeg("spreading_activation", func(legCtx context.Context) {
		if r.Graph == nil || queryVector == nil {
			return
		}
		seeds, err := r.Store.NearestByVector(legCtx, queryVector, 5, 0, opts.Filters)
		if err != nil || len(seeds) == 0 {
			return
		}
		activation := make(map[string]float64)
		frontier := make([]string, 0, len(seeds))
		for _, s := range seeds {
			frontier = append(frontier, s.Engram.ID)
			activation[s.Engram.ID] = s.Similarity
		}
		visited := make(map[string]bool)
		for hop := 0; hop < DefaultSpreadingActivationHops && len(frontier) > 0; hop++ {
			var next []string
			for _, id := range frontier {
				if visited[id] {
					continue
				}
				visited[id] = true
				neighbors, err := r.Graph.Neighbors(legCtx, id, "")
				if err != nil {
					continue
				}
				for _, n := range neighbors {
					score := activation[id] * DefaultHopDecay
					if existing, ok := activation[n]; !ok || score > existing {
						activation[n] = score
					}
					next = append(next, n)
				}
			}
			frontier = next
		}
		for id, score := range activation {
			if id == "" {
				continue
			}
			e, err := r.Store.Get(legCtx, id)
			if err != nil || e == nil {
				continue
			}
			s := score
			merge(*e, nil, &s)
			if len(activation) > limit {
				break
			}
		}
	})

	wg.Wait()

	filtered := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if !withinWindow(c.engram, opts.FromDate, opts.ToDate) {
			continue
		}
		filtered = append(filtered, c)
	}

	now := r.clock()
	results := make([]Result, 0, len(filtered))
	for _, c := range filtered {
		graphScore := c.graphScore
		if graphScore == nil && r.Graph != nil && c.engram.ID != "" {
			if n, err := r.Graph.CountConnections(ctx, c.engram.ID); err == nil {
				g := clampConnections(n)
				graphScore = &g
			}
		}
		in := Input{
			Engram:           &c.engram,
			QueryVector:      queryVector,
			VectorSimilarity: c.vectorSimilarity,
			GraphScore:       graphScore,
			ActiveDays:       r.ActiveDays,
		}
		score := Score(in, weights, now, r.ActiveDays)
		results = append(results, Result{Engram: c.engram, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	final := make([]Result, 0, limit)
	for _, res := range results {
		if res.Score < opts.MinScore {
			continue
		}
		final = append(final, res)
		if len(final) >= limit {
			break
		}
	}

	if opts.TrackAccess && r.Access != nil {
		ids := make([]string, 0, len(final))
		for _, res := range final {
			if res.Engram.ID != "" {
				ids = append(ids, res.Engram.ID)
			}
		}
		if len(ids) > 0 {
			r.Access.TrackMany(ids)
		}
	}

	return final, nil
}

func (r *Retriever) clock() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func clampConnections(n int) float64 {
	v := float64(n) / 10
	if v > 1 {
		return 1
	}
	return v
}

func withinWindow(e engram.Engram, from, to time.Time) bool {
	if !from.IsZero() && e.InsertedAt.Before(from) {
		return false
	}
	if !to.IsZero() && e.InsertedAt.After(to) {
		return false
	}
	return true
}
