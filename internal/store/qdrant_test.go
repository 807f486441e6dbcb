package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestQdrantPointIDPassesThroughUUIDs(t *testing.T) {
	id := uuid.New().String()
	assert.Equal(t, id, qdrantPointID(id))
}

func TestQdrantPointIDIsDeterministicForNonUUIDs(t *testing.T) {
	id := "engram-123"
	first := qdrantPointID(id)
	second := qdrantPointID(id)
	assert.Equal(t, first, second)
	assert.NotEqual(t, id, first)
	_, err := uuid.Parse(first)
	assert.NoError(t, err, "mapped point id must itself be a valid UUID")
}
