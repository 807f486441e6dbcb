package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memnexus/internal/config"
	"memnexus/internal/engine"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	embed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"embeddings": [][]float32{{0.1, 0.2, 0.3}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	t.Cleanup(embed.Close)

	cfg := config.Config{
		Embedding: config.EmbeddingConfig{
			Dim:       3,
			ProviderA: config.EmbeddingProviderConfig{Enabled: true, BaseURL: embed.URL, Model: "m"},
		},
		Novelty: config.NoveltyConfig{Enabled: true},
		Database: config.DatabaseConfig{
			Store: config.StoreBackendConfig{Backend: "memory"},
			Graph: config.GraphBackendConfig{Backend: "memory"},
			Cache: config.CacheBackendConfig{Backend: "memory"},
		},
		Telemetry: config.TelemetryConfig{Backend: "log"},
	}
	eng, err := engine.New(context.Background(), cfg)
	require.NoError(t, err)
	return eng
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	mux := newMux(testEngine(t))

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRememberAndRecallEndpoints(t *testing.T) {
	mux := newMux(testEngine(t))

	body := strings.NewReader(`{"content":"the sky is blue","category":"fact","importance":0.7}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/remember", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var remembered map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &remembered))
	assert.Equal(t, "new", remembered["kind"])
	assert.NotEmpty(t, remembered["engram_id"])

	req = httptest.NewRequest(http.MethodGet, "/v1/recall?q=sky&limit=5", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
}

func TestRememberRejectsNonPost(t *testing.T) {
	mux := newMux(testEngine(t))
	req := httptest.NewRequest(http.MethodGet, "/v1/remember", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFeedbackEndpointAdjustsHelpfulness(t *testing.T) {
	mux := newMux(testEngine(t))

	body := strings.NewReader(`{"content":"the sky is blue","category":"fact","importance":0.7}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/remember", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var remembered map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &remembered))
	id, _ := remembered["engram_id"].(string)
	require.NotEmpty(t, id)

	fbBody := strings.NewReader(`{"query":"sky","engram_id":"` + id + `","useful":true}`)
	req = httptest.NewRequest(http.MethodPost, "/v1/feedback", fbBody)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFeedbackRejectsMissingEngramID(t *testing.T) {
	mux := newMux(testEngine(t))
	req := httptest.NewRequest(http.MethodPost, "/v1/feedback", strings.NewReader(`{"useful":true}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
