// Package engine wires the memory engine's components (C1-C17) into a
// single running system: admission (embed -> classify novelty -> serialize
// write -> store), retrieval (route -> hybrid search -> cache), and the
// background schedulers that keep the memory set curated over time.
// Grounded on cmd/agentd/main.go's construct-then-run shape (teacher repo):
// backends are opened first, the long-lived components are built from
// them, and Start/Close bound the background goroutines' lifetime.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"memnexus/internal/access"
	"memnexus/internal/activity"
	"memnexus/internal/attention"
	"memnexus/internal/config"
	"memnexus/internal/consolidate"
	"memnexus/internal/embedding"
	"memnexus/internal/engram"
	"memnexus/internal/feedback"
	"memnexus/internal/forget"
	"memnexus/internal/graphclient"
	"memnexus/internal/llmprovider"
	"memnexus/internal/novelty"
	"memnexus/internal/resultcache"
	"memnexus/internal/retrieve"
	"memnexus/internal/router"
	"memnexus/internal/store"
	"memnexus/internal/synthesis"
	"memnexus/internal/telemetry"
	"memnexus/internal/working"
	"memnexus/internal/writeserializer"
)

// Engine composes every component into the running memory system.
type Engine struct {
	Store engram.Store
	Graph graphclient.Client

	Embedder  *embedding.Client
	Novelty   *novelty.Classifier
	Writer    *writeserializer.Serializer
	Working   *working.Memory
	Access    *access.Tracker
	Activity  *activity.Tracker
	Retriever *retrieve.Retriever
	Cache     *resultcache.Cache
	Attention *attention.Learner
	Feedback  *feedback.Tracker
	Telemetry telemetry.Sink

	Consolidator            *consolidate.Consolidator
	InteractionConsolidator *consolidate.InteractionConsolidator
	interactionInterval     time.Duration
	Sweeper                 *forget.Sweeper
	Synthesizer             *synthesis.Synthesizer

	llm llmprovider.Provider
}

// New constructs an Engine from a loaded configuration, opening all
// configured backends. The caller owns shutdown via Close.
func New(ctx context.Context, cfg config.Config) (*Engine, error) {
	graph, err := store.NewGraphClient(ctx, cfg.Database.Graph)
	if err != nil {
		return nil, fmt.Errorf("engine: graph backend: %w", err)
	}

	dim := cfg.Embedding.Dim
	if dim <= 0 {
		dim = 768
	}
	engramStore, err := store.NewStore(ctx, cfg.Database.Store, dim, graph)
	if err != nil {
		return nil, fmt.Errorf("engine: engram store: %w", err)
	}

	embedder := embedding.New(cfg.Embedding)
	vectorOnly := &vectorEmbedder{client: embedder}
	noveltyClassifier := novelty.New(engramStore, cfg.Novelty.Enabled)
	ws := writeserializer.New(engramStore)

	wm := working.New()
	if cfg.WorkingMemory.MaxItems > 0 {
		wm = wm.WithCapacity(cfg.WorkingMemory.MaxItems)
	}
	if cfg.WorkingMemory.TTLSeconds > 0 {
		wm = wm.WithTTL(time.Duration(cfg.WorkingMemory.TTLSeconds) * time.Second)
	}

	accessTracker := access.New(engramStore)

	activityTracker := activity.New()
	if cfg.ActivityTracker.InactivityThresholdHours > 0 {
		activityTracker = activityTracker.WithInactivityThreshold(
			time.Duration(cfg.ActivityTracker.InactivityThresholdHours) * time.Hour)
	}

	retriever := retrieve.New(engramStore, graph, vectorOnly, accessTracker)
	retriever.ActiveDays = activityTracker

	cacheBackend := newCacheBackend(cfg.Database.Cache)
	cache := resultcache.New(cacheBackend)
	if cfg.Database.Cache.TTL > 0 {
		cache = cache.WithTTL(time.Duration(cfg.Database.Cache.TTL) * time.Second)
	}

	attentionLearner := attention.New()
	retriever.Attention = attentionLearner
	feedbackTracker := feedback.New(engramStore)
	sink := newTelemetrySink(cfg.Telemetry)

	var llm llmprovider.Provider
	if cfg.LLM.APIKey != "" {
		timeout := time.Duration(cfg.LLM.LowPriorityTimeoutSeconds) * time.Second
		llm = llmprovider.New(cfg.LLM.APIKey, cfg.LLM.Model, timeout)
	}

	consolidator := consolidate.New(wm, vectorOnly, ws, engramStore)
	if cfg.Consolidation.IntervalMS > 0 {
		consolidator.Interval = time.Duration(cfg.Consolidation.IntervalMS) * time.Millisecond
	}
	if cfg.Consolidation.MinAgeMS > 0 {
		consolidator.MinAge = time.Duration(cfg.Consolidation.MinAgeMS) * time.Millisecond
	}
	if cfg.Consolidation.ScoreThreshold > 0 {
		consolidator.ScoreThreshold = cfg.Consolidation.ScoreThreshold
	}

	sweeper := forget.New(engramStore, ws, sink, activityTracker)
	if cfg.Forgetting.IntervalMS > 0 {
		sweeper.Interval = time.Duration(cfg.Forgetting.IntervalMS) * time.Millisecond
	}
	if cfg.Forgetting.Threshold > 0 {
		sweeper.Threshold = cfg.Forgetting.Threshold
	}
	if cfg.Forgetting.BatchSize > 0 {
		sweeper.BatchSize = cfg.Forgetting.BatchSize
	}
	sweeper.DryRun = cfg.Forgetting.DryRun

	var synthesizer *synthesis.Synthesizer
	if cfg.Synthesizer.Enabled && llm != nil {
		synthesizer = synthesis.New(engramStore, ws, ws, llm)
		if cfg.Synthesizer.IntervalMS > 0 {
			synthesizer.Interval = time.Duration(cfg.Synthesizer.IntervalMS) * time.Millisecond
		}
		if cfg.Synthesizer.MinClusterSize > 0 {
			synthesizer.MinClusterSize = cfg.Synthesizer.MinClusterSize
		}
		if cfg.Synthesizer.SimilarityThreshold > 0 {
			synthesizer.SimilarityThreshold = cfg.Synthesizer.SimilarityThreshold
		}
		if cfg.Synthesizer.MaxSynthesesPerRun > 0 {
			synthesizer.MaxSynthesesPerRun = cfg.Synthesizer.MaxSynthesesPerRun
		}
	}

	interactionInterval := time.Duration(cfg.InteractionConsolidation.MinAgeMinutes) * time.Minute
	if interactionInterval <= 0 {
		interactionInterval = consolidate.DefaultInterval
	}

	return &Engine{
		Store:               engramStore,
		Graph:               graph,
		Embedder:            embedder,
		Novelty:             noveltyClassifier,
		Writer:              ws,
		Working:             wm,
		Access:              accessTracker,
		Activity:            activityTracker,
		Retriever:           retriever,
		Cache:               cache,
		Attention:           attentionLearner,
		Feedback:            feedbackTracker,
		Telemetry:           sink,
		Consolidator:        consolidator,
		Sweeper:             sweeper,
		Synthesizer:         synthesizer,
		interactionInterval: interactionInterval,
		llm:                 llm,
	}, nil
}

// vectorEmbedder adapts *embedding.Client's (Result, error) return to the
// bare ([]float32, error) shape the retriever (C8) and consolidator (C13)
// expect; they only ever need the vector, not the provider tag.
type vectorEmbedder struct {
	client *embedding.Client
}

func (v *vectorEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	r, err := v.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return r.Vector, nil
}

func newCacheBackend(cfg config.CacheBackendConfig) resultcache.Backend {
	if cfg.Backend == "redis" && cfg.Addr != "" {
		return resultcache.NewRedisBackend(cfg.Addr)
	}
	return resultcache.NewMemoryBackend()
}

func newTelemetrySink(cfg config.TelemetryConfig) telemetry.Sink {
	if cfg.Backend == "kafka" && len(cfg.Brokers) > 0 {
		brokers := cfg.Brokers[0]
		for _, b := range cfg.Brokers[1:] {
			brokers += "," + b
		}
		topic := cfg.Topic
		if topic == "" {
			topic = "memory.events"
		}
		sink, err := telemetry.NewKafkaSink(brokers, topic)
		if err != nil {
			log.Warn().Err(err).Msg("engine_kafka_sink_failed_falling_back_to_log")
			return telemetry.NewLogSink()
		}
		return sink
	}
	return telemetry.NewLogSink()
}

// WithInteractionSource wires the host runtime's interaction queue and an
// LLM curator into the engine's interaction consolidator. Interactions are
// external to the memory engine proper (spec.md §6); callers that don't
// record them simply never call this, and the consolidator stays nil.
func (e *Engine) WithInteractionSource(source consolidate.InteractionSource) *Engine {
	if e.llm == nil {
		log.Warn().Msg("engine_interaction_source_ignored_no_llm_configured")
		return e
	}
	curator := newLLMCurator(e.llm)
	e.InteractionConsolidator = consolidate.NewInteractionConsolidator(source, curator, e.Writer)
	return e
}

// RememberOptions controls a single admission call.
type RememberOptions struct {
	Category   engram.Category
	Importance float64
	ProjectID  string
	ThreadID   string
	Tags       []string
	Metadata   map[string]any
}

// RememberOutcome reports what admission decided for the content.
type RememberOutcome struct {
	Kind   novelty.Kind
	Engram *engram.Engram
}

// Remember implements the admission pipeline: embed (C2), classify novelty
// (C7), and — for new or ambiguous content — serialize the write (C16)
// into the store (C1). Redundant content is not re-inserted; the matching
// existing engram is returned and its access is tracked instead.
func (e *Engine) Remember(ctx context.Context, content string, opts RememberOptions) (RememberOutcome, error) {
	category := opts.Category
	if !engram.ValidCategory(category) {
		category = engram.CategoryObservation
	}
	projectID := opts.ProjectID
	if projectID == "" {
		projectID = engram.DefaultProjectID
	}

	result, err := e.Embedder.Embed(ctx, content)
	if err != nil {
		return RememberOutcome{}, fmt.Errorf("engine: remember: embed: %w", err)
	}

	outcome, err := e.Novelty.Classify(ctx, result.Vector, category, projectID, 5)
	if err != nil {
		return RememberOutcome{}, fmt.Errorf("engine: remember: classify: %w", err)
	}

	if outcome.Kind == novelty.KindRedundant {
		e.Access.Track(outcome.Redundant.ID)
		return RememberOutcome{Kind: novelty.KindRedundant, Engram: outcome.Redundant}, nil
	}

	importance := opts.Importance
	if importance <= 0 {
		importance = 0.5
	}
	metadata := opts.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if outcome.Kind == novelty.KindAmbiguous {
		ids := make([]string, 0, len(outcome.Ambiguous))
		for _, m := range outcome.Ambiguous {
			ids = append(ids, m.Engram.ID)
		}
		metadata["ambiguous_matches"] = ids
	}

	rec := &engram.Engram{
		Content:            content,
		Category:           category,
		Importance:         importance,
		OriginalImportance: importance,
		Embedding:          result.Vector,
		DecayRate:          engram.DecayRateForImportance(importance),
		Metadata:           metadata,
		ProjectID:          projectID,
		ThreadID:           opts.ThreadID,
		Tags:               opts.Tags,
	}

	if err := e.Writer.Insert(ctx, rec); err != nil {
		return RememberOutcome{}, fmt.Errorf("engine: remember: insert: %w", err)
	}
	e.Activity.RegisterActivity()
	return RememberOutcome{Kind: outcome.Kind, Engram: rec}, nil
}

// Recall implements the retrieval pipeline: route (C10) to pick a default
// strategy when the caller doesn't name one, check the result cache (C17),
// and otherwise run the hybrid retriever (C8/C9), populating the cache on
// the way out and crediting usage feedback (C12) for every hit.
func (e *Engine) Recall(ctx context.Context, query string, opts retrieve.Options) ([]retrieve.Result, error) {
	if opts.Strategy == "" {
		rec := router.RecommendOperation(query)
		if strategy, ok := rec.ExtraOptions["strategy"]; ok {
			opts.Strategy = retrieve.Strategy(strategy)
		}
	}

	key := resultcache.Key(query, string(opts.Strategy), opts.Limit, opts.MinScore, filterTags(opts.Filters))
	if cached, ok, err := e.Cache.Get(ctx, key); err == nil && ok {
		return cached, nil
	}

	results, err := e.Retriever.Search(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: recall: search: %w", err)
	}

	for _, r := range results {
		e.Feedback.OnRetrieval(r.Engram.ID)
	}

	if err := e.Cache.Set(ctx, key, results); err != nil {
		log.Warn().Err(err).Msg("engine_result_cache_set_failed")
	}
	return results, nil
}

// SubmitFeedback records a usefulness signal against a single retrieved
// engram (C12: helpfulness_score adjustment) and feeds the same signal into
// the attention learner (C11: online weight adjustment), reconstructing the
// per-factor contributions the original retrieval would have produced for
// query against this engram via Explain.
func (e *Engine) SubmitFeedback(ctx context.Context, query, engramID string, useful bool) error {
	eng, err := e.Store.Get(ctx, engramID)
	if err != nil {
		return fmt.Errorf("engine: feedback: get: %w", err)
	}

	if useful {
		if err := e.Feedback.SignalUseful(ctx, engramID); err != nil {
			return fmt.Errorf("engine: feedback: signal_useful: %w", err)
		}
	} else {
		if err := e.Feedback.SignalNoise(ctx, engramID); err != nil {
			return fmt.Errorf("engine: feedback: signal_noise: %w", err)
		}
	}

	var queryVector []float32
	if query != "" {
		if result, err := e.Embedder.Embed(ctx, query); err == nil {
			queryVector = result.Vector
		} else {
			log.Warn().Err(err).Msg("engine_feedback_embed_failed_skipping_attention_update")
		}
	}

	in := retrieve.Input{Engram: eng, QueryVector: queryVector, ActiveDays: e.Retriever.ActiveDays}
	ex := retrieve.Explain(in, retrieve.WeightsFor(retrieve.StrategyBalanced), time.Now(), e.Retriever.ActiveDays)

	signal := attention.SignalPositive
	if !useful {
		signal = attention.SignalNegative
	}
	e.Attention.Feedback(signal, retrieve.Contributions(ex))
	return nil
}

func filterTags(f engram.Filters) map[string]string {
	tags := map[string]string{}
	if f.Category != "" {
		tags["category"] = string(f.Category)
	}
	if f.ProjectID != "" {
		tags["project_id"] = f.ProjectID
	}
	if len(f.Tags) > 0 {
		joined := f.Tags[0]
		for _, t := range f.Tags[1:] {
			joined += "," + t
		}
		tags["tags"] = joined
	}
	return tags
}

// Start launches every background scheduler: the access tracker (C5), the
// usage feedback flush loop (C12), the consolidator and interaction
// consolidator (C13), the forgetting sweeper (C14), the synthesizer (C15),
// and the write serializer's actor (C16). It returns immediately; schedulers
// stop when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.Writer.Run(ctx)
	e.Access.Run(ctx)
	e.Feedback.Run(ctx)
	go e.Consolidator.Run(ctx)
	go e.Sweeper.Run(ctx)
	if e.Synthesizer != nil {
		go e.Synthesizer.Run(ctx)
	}
	if e.InteractionConsolidator != nil {
		go e.InteractionConsolidator.Run(ctx, e.interactionInterval)
	}
}

// Close flushes pending writes and stops the write serializer's actor.
func (e *Engine) Close(ctx context.Context) error {
	e.Access.Stop()
	e.Feedback.Stop()
	e.Writer.Stop()
	return e.Store.Close()
}
