package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyProceduralPattern(t *testing.T) {
	cls := Classify("how to configure the memory engine")
	assert.Equal(t, IntentProcedural, cls.Intent)
}

func TestClassifyFactualPattern(t *testing.T) {
	cls := Classify("what is the decay rate")
	assert.Equal(t, IntentFactual, cls.Intent)
}

func TestClassifyNoSignalsIsHybrid(t *testing.T) {
	cls := Classify("banana spaceship orbit")
	assert.Equal(t, IntentHybrid, cls.Intent)
	assert.Equal(t, 0.5, cls.Confidence)
}

func TestRecommendOperationStrongTemporalRedirects(t *testing.T) {
	rec := RecommendOperation("what's the latest update")
	assert.Equal(t, OperationList, rec.Operation)
	assert.Equal(t, "temporal_redirect", rec.Reason)
	assert.Equal(t, "recent", rec.ExtraOptions["sort"])
}

func TestRecommendOperationWeakTemporal(t *testing.T) {
	rec := RecommendOperation("when did we discuss the recent outage history")
	assert.Equal(t, OperationSearch, rec.Operation)
	assert.Equal(t, "temporal", rec.Reason)
	assert.Equal(t, "recency_heavy", rec.ExtraOptions["strategy"])
}

func TestRecommendOperationDefaultsToSemantic(t *testing.T) {
	rec := RecommendOperation("engram synthesis clusters")
	assert.Equal(t, OperationSearch, rec.Operation)
	assert.Equal(t, "semantic", rec.Reason)
}
