// Package embedding implements the Embedding Client (C2): an ordered
// provider chain (primary local, secondary remote) with per-provider
// circuit breakers and a content-hash cache, generalised from the
// teacher's single-endpoint embedding HTTP client into the two-provider
// contract spec.md §4.2 requires. No fallback embedding is ever synthesized;
// exhausting the chain fails loudly with ErrAllProvidersFailed.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"memnexus/internal/config"
	"memnexus/internal/engram"
)

// MaxInputBytes is the truncation limit applied to all embedding input.
const MaxInputBytes = 8000

// ProviderCache is the synthetic provider tag for cache hits.
const ProviderCache = "cache"

// Result is a single embedding plus the provider tag that produced it.
type Result struct {
	Vector   []float32
	Provider string
}

// providerEndpoint knows how to call one HTTP embedding endpoint. The two
// concrete providers differ in request/response shape (local vs. remote),
// grounded on the teacher's single-provider EmbedText plus the
// OpenAI-compatible /v1/embeddings shape used across the rest of the pack.
type providerEndpoint interface {
	name() string
	embed(ctx context.Context, httpClient *http.Client, text string) ([]float32, error)
}

// Client is the C2 embedding client: an ordered chain of providers, each
// behind its own circuit breaker, in front of a content-hash cache.
type Client struct {
	providers  []providerEndpoint
	breakers   map[string]*breaker
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string][]float32
}

// New constructs a Client from config. Providers with Enabled=false are
// omitted from the chain.
func New(cfg config.EmbeddingConfig) *Client {
	c := &Client{
		breakers:   make(map[string]*breaker),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      make(map[string][]float32),
	}
	if cfg.ProviderA.Enabled {
		c.addProvider(&localProvider{cfg: cfg.ProviderA}, cfg.Breaker)
	}
	if cfg.ProviderB.Enabled {
		c.addProvider(&remoteProvider{cfg: cfg.ProviderB}, cfg.Breaker)
	}
	return c
}

func (c *Client) addProvider(p providerEndpoint, bcfg config.CircuitBreakerConfig) {
	c.providers = append(c.providers, p)
	c.breakers[p.name()] = newBreaker(bcfg)
}

// Embed returns the embedding for text, trying providers in chain order.
func (c *Client) Embed(ctx context.Context, text string) (Result, error) {
	text = normalize(text)
	key := contentHash(text)

	c.mu.Lock()
	if v, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return Result{Vector: v, Provider: ProviderCache}, nil
	}
	c.mu.Unlock()

	for _, p := range c.providers {
		br := c.breakers[p.name()]
		if !br.allow() {
			continue
		}
		vec, err := p.embed(ctx, c.httpClient, text)
		if err != nil {
			br.recordFailure()
			continue
		}
		br.recordSuccess()

		c.mu.Lock()
		c.cache[key] = vec
		c.mu.Unlock()
		return Result{Vector: vec, Provider: p.name()}, nil
	}
	return Result{}, engram.ErrAllProvidersFailed
}

// EmbedBatch embeds each text in turn with Embed; no batch endpoint is used.
// It returns an error at the first text that fails.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	out := make([]Result, len(texts))
	for i, t := range texts {
		r, err := c.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embedding: batch item %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

func normalize(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > MaxInputBytes {
		text = string([]byte(text)[:MaxInputBytes])
	}
	return text
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// localProvider speaks the primary local endpoint's batch-shaped API:
// POST {base}/api/embed, {"input": [...]}  -> {"embeddings": [[float,...]]}.
type localProvider struct {
	cfg config.EmbeddingProviderConfig
}

func (p *localProvider) name() string { return "provider_a" }

func (p *localProvider) embed(ctx context.Context, httpClient *http.Client, text string) ([]float32, error) {
	reqBody, _ := json.Marshal(map[string]any{"model": p.cfg.Model, "input": []string{text}})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(p.cfg.BaseURL, "/")+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("provider_a: %s: %s", resp.Status, string(b))
	}

	var parsed struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("provider_a: decode: %w", err)
	}
	if len(parsed.Embeddings) == 0 {
		return nil, fmt.Errorf("provider_a: empty response")
	}
	return parsed.Embeddings[0], nil
}

// remoteProvider speaks an OpenAI-compatible /v1/embeddings API:
// POST {base}/v1/embeddings, Bearer auth -> {"data": [{"embedding": [...]}]}.
type remoteProvider struct {
	cfg config.EmbeddingProviderConfig
}

func (p *remoteProvider) name() string { return "provider_b" }

func (p *remoteProvider) embed(ctx context.Context, httpClient *http.Client, text string) ([]float32, error) {
	reqBody, _ := json.Marshal(map[string]any{"model": p.cfg.Model, "input": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(p.cfg.BaseURL, "/")+"/v1/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("provider_b: %s: %s", resp.Status, string(b))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("provider_b: decode: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("provider_b: empty response")
	}
	return parsed.Data[0].Embedding, nil
}
