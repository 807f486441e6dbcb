package decay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memnexus/internal/engram"
)

func baseEngram() *engram.Engram {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	return &engram.Engram{
		ID:             "e1",
		Importance:     0.6,
		DecayRate:      0.005,
		AccessCount:    0,
		InsertedAt:     now,
		LastAccessedAt: now,
	}
}

func TestScoreBounds(t *testing.T) {
	e := baseEngram()
	for _, days := range []float64{0, 1, 10, 100, 1000} {
		now := e.InsertedAt.Add(time.Duration(days*24) * time.Hour)
		s := Score(e, now, nil)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestDecayMonotonicity(t *testing.T) {
	e := baseEngram()
	t1 := e.InsertedAt.Add(5 * 24 * time.Hour)
	t2 := e.InsertedAt.Add(50 * 24 * time.Hour)
	s1 := Score(e, t1, nil)
	s2 := Score(e, t2, nil)
	assert.LessOrEqual(t, s2, s1)
}

func TestAccessFactorMonotonicity(t *testing.T) {
	e := baseEngram()
	now := e.InsertedAt.Add(10 * 24 * time.Hour)
	sLow := Score(e, now, nil)
	e.AccessCount = 20
	sHigh := Score(e, now, nil)
	assert.GreaterOrEqual(t, sHigh, sLow)
}

func TestShouldForgetRespectsProtected(t *testing.T) {
	e := baseEngram()
	e.Importance = 0.05
	e.Protected = true
	now := e.InsertedAt.Add(1000 * 24 * time.Hour)
	assert.False(t, ShouldForget(e, now, nil, DefaultThreshold))
}

func TestPredictForgettingNeverCases(t *testing.T) {
	e := baseEngram()
	e.Protected = true
	require.Nil(t, PredictForgetting(e, time.Now(), DefaultThreshold))

	e2 := baseEngram()
	e2.Importance = 0.97
	require.Nil(t, PredictForgetting(e2, time.Now(), DefaultThreshold))

	e3 := baseEngram()
	e3.DecayRate = 0
	require.Nil(t, PredictForgetting(e3, time.Now(), DefaultThreshold))
}

func TestDefaultDecayRateTable(t *testing.T) {
	cases := []struct {
		importance float64
		want       float64
	}{
		{0.95, 0.0001},
		{0.8, 0.001},
		{0.6, 0.005},
		{0.4, 0.02},
		{0.1, 0.1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, engram.DecayRateForImportance(c.importance))
	}
}
