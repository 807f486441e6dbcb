package resultcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memnexus/internal/engram"
	"memnexus/internal/retrieve"
)

func TestKeyIgnoresWhitespaceAndCase(t *testing.T) {
	a := Key("  Hello   World ", "balanced", 10, 0, nil)
	b := Key("hello world", "balanced", 10, 0, nil)
	assert.Equal(t, a, b)
}

func TestKeyDiffersOnStrategy(t *testing.T) {
	a := Key("q", "balanced", 10, 0, nil)
	b := Key("q", "vector_heavy", 10, 0, nil)
	assert.NotEqual(t, a, b)
}

func TestSetGetRoundTrip(t *testing.T) {
	c := New(NewMemoryBackend())
	ctx := context.Background()
	results := []retrieve.Result{{Engram: engram.Engram{ID: "e1"}, Score: 0.9}}

	require.NoError(t, c.Set(ctx, "k1", results))
	got, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].Engram.ID)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(NewMemoryBackend())
	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
