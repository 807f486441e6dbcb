package retrieve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"memnexus/internal/engram"
)

func TestCosineSimilarityMismatchedLength(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1}))
}

func TestCosineSimilarityIdentical(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
}

func TestAccessComponentBounds(t *testing.T) {
	assert.Equal(t, 0.0, AccessComponent(0))
	assert.InDelta(t, 1.0, AccessComponent(10), 1e-9)
	assert.LessOrEqual(t, AccessComponent(1000), 1.0)
}

func TestImportanceComponentDefaultsWhenZero(t *testing.T) {
	e := &engram.Engram{}
	assert.Equal(t, 0.5, ImportanceComponent(e))
	e.Importance = 0.9
	assert.Equal(t, 0.9, ImportanceComponent(e))
}

func TestScoreIsClampedAndWeighted(t *testing.T) {
	now := time.Now()
	e := &engram.Engram{
		Importance:     0.8,
		DecayRate:      0.001,
		AccessCount:    5,
		InsertedAt:     now,
		LastAccessedAt: now,
		Embedding:      []float32{1, 0},
	}
	in := Input{Engram: e, QueryVector: []float32{1, 0}}
	s := Score(in, WeightsFor(StrategyBalanced), now, nil)
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestExplainComponentsSumToTotal(t *testing.T) {
	now := time.Now()
	e := &engram.Engram{Importance: 0.6, DecayRate: 0.01, InsertedAt: now, LastAccessedAt: now}
	in := Input{Engram: e}
	ex := Explain(in, WeightsFor(StrategyBalanced), now, nil)
	var sum float64
	for _, c := range ex.Components {
		sum += c.Product
	}
	assert.InDelta(t, engram.Clamp01(sum), ex.Total, 1e-9)
	assert.Len(t, ex.Components, 5)
}

func TestWeightsForUnknownStrategyFallsBackToBalanced(t *testing.T) {
	assert.Equal(t, WeightsFor(StrategyBalanced), WeightsFor(Strategy("nonsense")))
}

func TestVectorComponentPrefersPrecomputedOverride(t *testing.T) {
	e := &engram.Engram{Embedding: []float32{1, 0}}
	override := 0.42
	in := Input{Engram: e, QueryVector: []float32{0, 1}, VectorSimilarity: &override}
	assert.Equal(t, 0.42, vectorComponent(in))
}
