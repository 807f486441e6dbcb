// Package retrieve implements the Hybrid Scorer (C9) and Hybrid Retriever
// (C8): multi-leg parallel fan-out over the engram store plus the external
// graph, fused with a weighted linear combination. The fan-out shape is
// grounded on rag/retrieve/candidates.go's ParallelCandidates (teacher
// repo); the scoring formula is spec-defined, not RRF as in
// rag/retrieve/fusion.go.
package retrieve

import (
	"math"
	"time"

	"memnexus/internal/attention"
	"memnexus/internal/decay"
	"memnexus/internal/engram"
)

// Weights is a weight map over the five scoring components. Must sum to 1
// for a well-formed strategy, though Score does not enforce this.
type Weights struct {
	Vector     float64
	Recency    float64
	Access     float64
	Importance float64
	Graph      float64
}

// Strategy names the named default weight presets (spec.md §4.9).
type Strategy string

const (
	StrategyBalanced     Strategy = "balanced"
	StrategyVectorHeavy  Strategy = "vector_heavy"
	StrategyGraphHeavy   Strategy = "graph_heavy"
	StrategyRecencyHeavy Strategy = "recency_heavy"
)

var defaultWeights = map[Strategy]Weights{
	StrategyBalanced:     {Vector: 0.35, Recency: 0.25, Access: 0.15, Importance: 0.15, Graph: 0.10},
	StrategyVectorHeavy:  {Vector: 0.50, Recency: 0.15, Access: 0.10, Importance: 0.15, Graph: 0.10},
	StrategyGraphHeavy:   {Vector: 0.25, Recency: 0.15, Access: 0.15, Importance: 0.15, Graph: 0.30},
	StrategyRecencyHeavy: {Vector: 0.25, Recency: 0.40, Access: 0.10, Importance: 0.15, Graph: 0.10},
}

// WeightsFor returns the default weight vector for a named strategy, falling
// back to balanced for unknown names.
func WeightsFor(s Strategy) Weights {
	if w, ok := defaultWeights[s]; ok {
		return w
	}
	return defaultWeights[StrategyBalanced]
}

// Component holds one scoring component's raw value, weight, and product,
// for Explain's diagnostic breakdown.
type Component struct {
	Name    string
	Raw     float64
	Weight  float64
	Product float64
}

// Explanation is the full breakdown returned by Explain.
type Explanation struct {
	Components []Component
	Total      float64
}

// CosineSimilarity computes cosine similarity between a and b, returning 0
// if either is empty or their lengths mismatch.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// AccessComponent computes the access-count scoring term: min(1, ln(1+n)/ln(11)).
func AccessComponent(accessCount int64) float64 {
	return math.Min(1, math.Log(1+float64(accessCount))/math.Log(11))
}

// ImportanceComponent returns e.Importance, defaulting to 0.5 if unset (zero value).
func ImportanceComponent(e *engram.Engram) float64 {
	if e.Importance == 0 {
		return 0.5
	}
	return e.Importance
}

// Input bundles the optional precomputed values the scorer needs alongside
// the engram itself.
type Input struct {
	Engram           *engram.Engram
	QueryVector      []float32
	VectorSimilarity *float64 // precomputed override; takes precedence over QueryVector
	GraphScore       *float64
	ActiveDays       decay.ActiveDaysSource
}

// vectorComponent computes the vector similarity term.
func vectorComponent(in Input) float64 {
	if in.VectorSimilarity != nil {
		return *in.VectorSimilarity
	}
	if len(in.QueryVector) > 0 && len(in.Engram.Embedding) > 0 {
		return CosineSimilarity(in.QueryVector, in.Engram.Embedding)
	}
	return 0
}

func graphComponent(in Input) float64 {
	if in.GraphScore != nil {
		return *in.GraphScore
	}
	return 0
}

// Score computes the weighted, clamped total for an engram at instant now
// (recency needs the current instant) under weight map w.
func Score(in Input, w Weights, now time.Time, activeDays decay.ActiveDaysSource) float64 {
	recency := decay.Score(in.Engram, now, activeDays)
	access := AccessComponent(in.Engram.AccessCount)
	importance := ImportanceComponent(in.Engram)
	vector := vectorComponent(in)
	graph := graphComponent(in)

	raw := w.Vector*vector + w.Recency*recency + w.Access*access + w.Importance*importance + w.Graph*graph
	return engram.Clamp01(raw)
}

// WithLearned overrides the four attention-tracked components (vector,
// recency, access, graph) of w with the Attention Learner's current weights
// (C11, spec.md §4.11), leaving importance sourced from the named strategy
// preset since the learner has no corresponding factor.
func WithLearned(w Weights, learned attention.Weights) Weights {
	if learned == nil {
		return w
	}
	out := w
	out.Vector = learned[attention.FactorEmbeddingSim]
	out.Recency = learned[attention.FactorRecency]
	out.Access = learned[attention.FactorAccess]
	out.Graph = learned[attention.FactorEdgeWeight]
	return out
}

// Contributions maps an Explanation's per-component raw values onto the
// attention.Factor keys Learner.Feedback expects.
func Contributions(ex Explanation) map[attention.Factor]float64 {
	contrib := make(map[attention.Factor]float64, 4)
	for _, c := range ex.Components {
		switch c.Name {
		case "vector":
			contrib[attention.FactorEmbeddingSim] = c.Raw
		case "recency":
			contrib[attention.FactorRecency] = c.Raw
		case "access":
			contrib[attention.FactorAccess] = c.Raw
		case "graph":
			contrib[attention.FactorEdgeWeight] = c.Raw
		}
	}
	return contrib
}

// Explain returns the per-component raw value, weight, and product, plus the
// clamped total, per spec.md §4.9's explain() requirement.
func Explain(in Input, w Weights, now time.Time, activeDays decay.ActiveDaysSource) Explanation {
	recency := decay.Score(in.Engram, now, activeDays)
	access := AccessComponent(in.Engram.AccessCount)
	importance := ImportanceComponent(in.Engram)
	vector := vectorComponent(in)
	graph := graphComponent(in)

	comps := []Component{
		{Name: "vector", Raw: vector, Weight: w.Vector, Product: vector * w.Vector},
		{Name: "recency", Raw: recency, Weight: w.Recency, Product: recency * w.Recency},
		{Name: "access", Raw: access, Weight: w.Access, Product: access * w.Access},
		{Name: "importance", Raw: importance, Weight: w.Importance, Product: importance * w.Importance},
		{Name: "graph", Raw: graph, Weight: w.Graph, Product: graph * w.Graph},
	}
	var total float64
	for _, c := range comps {
		total += c.Product
	}
	return Explanation{Components: comps, Total: engram.Clamp01(total)}
}
