// Package novelty implements the Novelty Classifier (C7): a read-only
// decision of whether new content duplicates, overlaps, or extends the
// existing memory set, grounded on the nearest-neighbour query shape used
// throughout the teacher's persistence/databases vector stores.
package novelty

import (
	"context"

	"memnexus/internal/engram"
)

// Outcome is the closed partition C7 returns: exactly one of New, Ambiguous,
// or Redundant is populated.
type Outcome struct {
	Kind      Kind
	Redundant *engram.Engram
	Ambiguous []Match
}

// Kind enumerates the three possible classifications.
type Kind string

const (
	KindNew       Kind = "new"
	KindAmbiguous Kind = "ambiguous"
	KindRedundant Kind = "redundant"
)

// Match pairs a candidate engram with its similarity to the proposed content.
type Match struct {
	Engram     engram.Engram
	Similarity float64
}

type thresholds struct {
	redundant float64
	ambiguous float64
}

var thresholdsByCategory = map[engram.Category]thresholds{
	engram.CategoryFact:        {redundant: 0.95, ambiguous: 0.82},
	engram.CategoryObservation: {redundant: 0.92, ambiguous: 0.78},
	engram.CategoryAction:      {redundant: 0.90, ambiguous: 0.75},
	engram.CategoryPlan:        {redundant: 0.88, ambiguous: 0.72},
}

var defaultThresholds = thresholds{redundant: 0.92, ambiguous: 0.78}

func thresholdsFor(c engram.Category) thresholds {
	if th, ok := thresholdsByCategory[c]; ok {
		return th
	}
	return defaultThresholds
}

// VectorSearcher is the subset of engram.Store the classifier needs.
type VectorSearcher interface {
	NearestByVector(ctx context.Context, vector []float32, topK int, minSimilarity float64, f engram.Filters) ([]engram.VectorHit, error)
}

// Classifier decides new/ambiguous/redundant for proposed content against
// the existing memory set.
type Classifier struct {
	store   VectorSearcher
	enabled bool
}

// New constructs a Classifier. enabled=false makes Classify always report
// KindNew without querying, per spec.md §4.7.
func New(store VectorSearcher, enabled bool) *Classifier {
	return &Classifier{store: store, enabled: enabled}
}

// Classify implements the C7 algorithm: retrieve up to 2*limit nearest
// active memories of the same category (and project, if given), then apply
// category-specific thresholds to the top similarity.
func (c *Classifier) Classify(ctx context.Context, embedding []float32, category engram.Category, projectID string, limit int) (Outcome, error) {
	if !c.enabled {
		return Outcome{Kind: KindNew}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	notSuperseded := false
	filters := engram.Filters{Category: category, ProjectID: projectID, Superseded: &notSuperseded}

	hits, err := c.store.NearestByVector(ctx, embedding, 2*limit, 0, filters)
	if err != nil {
		return Outcome{}, err
	}

	th := thresholdsFor(category)

	var top float64
	if len(hits) > 0 {
		top = hits[0].Similarity
	}

	if top >= th.redundant {
		e := hits[0].Engram
		return Outcome{Kind: KindRedundant, Redundant: &e}, nil
	}

	var ambiguous []Match
	for _, h := range hits {
		if h.Similarity >= th.ambiguous {
			ambiguous = append(ambiguous, Match{Engram: h.Engram, Similarity: h.Similarity})
		}
	}
	if len(ambiguous) > 0 {
		return Outcome{Kind: KindAmbiguous, Ambiguous: ambiguous}, nil
	}

	return Outcome{Kind: KindNew}, nil
}
