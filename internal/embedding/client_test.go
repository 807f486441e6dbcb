package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memnexus/internal/config"
	"memnexus/internal/engram"
)

func localServer(t *testing.T, vector []float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"embeddings": [][]float32{vector}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
}

func remoteServer(t *testing.T, vector []float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("expected Bearer secret, got %q", got)
		}
		resp := map[string]any{"data": []map[string]any{{"embedding": vector}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
}

func TestEmbedUsesPrimaryProvider(t *testing.T) {
	ts := localServer(t, []float32{0.1, 0.2})
	defer ts.Close()

	c := New(config.EmbeddingConfig{
		ProviderA: config.EmbeddingProviderConfig{Enabled: true, BaseURL: ts.URL, Model: "m"},
	})
	r, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "provider_a", r.Provider)
	assert.Equal(t, []float32{0.1, 0.2}, r.Vector)
}

func TestEmbedFallsBackToSecondaryOnPrimaryFailure(t *testing.T) {
	badPrimary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badPrimary.Close()
	ts := remoteServer(t, []float32{0.5})
	defer ts.Close()

	c := New(config.EmbeddingConfig{
		ProviderA: config.EmbeddingProviderConfig{Enabled: true, BaseURL: badPrimary.URL, Model: "m"},
		ProviderB: config.EmbeddingProviderConfig{Enabled: true, BaseURL: ts.URL, Model: "m", APIKey: "secret"},
	})
	r, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "provider_b", r.Provider)
}

func TestEmbedCachesByContentHash(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := map[string]any{"embeddings": [][]float32{{0.9}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	c := New(config.EmbeddingConfig{
		ProviderA: config.EmbeddingProviderConfig{Enabled: true, BaseURL: ts.URL, Model: "m"},
	})
	_, err := c.Embed(context.Background(), "same text")
	require.NoError(t, err)
	r2, err := c.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, ProviderCache, r2.Provider)
	assert.Equal(t, 1, calls)
}

func TestEmbedFailsLoudlyWhenAllProvidersExhausted(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	c := New(config.EmbeddingConfig{
		ProviderA: config.EmbeddingProviderConfig{Enabled: true, BaseURL: bad.URL, Model: "m"},
	})
	_, err := c.Embed(context.Background(), "hello")
	assert.True(t, errors.Is(err, engram.ErrAllProvidersFailed))
}

func TestNormalizeTruncatesAndTrims(t *testing.T) {
	long := make([]byte, MaxInputBytes+500)
	for i := range long {
		long[i] = 'a'
	}
	got := normalize("  " + string(long) + "  ")
	assert.Len(t, got, MaxInputBytes)
}

func TestBreakerOpensAfterThresholdFailures(t *testing.T) {
	b := newBreaker(config.CircuitBreakerConfig{FailureThreshold: 2, WindowSeconds: 60, CooldownSeconds: 30})
	assert.True(t, b.allow())
	b.recordFailure()
	assert.True(t, b.allow())
	b.recordFailure()
	assert.False(t, b.allow())
}

func TestBreakerClosesAfterCooldown(t *testing.T) {
	b := newBreaker(config.CircuitBreakerConfig{FailureThreshold: 1, WindowSeconds: 60, CooldownSeconds: 1})
	fixed := b.now()
	b.now = func() time.Time { return fixed }
	b.recordFailure()
	assert.False(t, b.allow())

	b.now = func() time.Time { return fixed.Add(2 * time.Second) }
	assert.True(t, b.allow())
}
